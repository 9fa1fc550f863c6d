package components

// Default field names are used by components to know the names of input and output fields.
var Defaults = struct {
	ChanField4CSVFileName string // the map key that carries CSV file paths produced by NewCsvFileWriter.
	ChanField4BucketKey   string // the map key that carries the S3 object key written by NewCopyFilesToS3.
	ChanField4RowsWritten string // the map key that carries the row count produced by NewTableOutput.
}{
	ChanField4CSVFileName: "#CSVFileName",
	ChanField4BucketKey:   "#BucketKey",
	ChanField4RowsWritten: "#RowsWritten",
}
