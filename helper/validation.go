package helper

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStructIsPopulated will check if any mandatory fields in cfg are missing.
// It uses struct tags to determine which fields are mandatory and the error text to fetch.
// The error text returned is just a list of the struct tags with key "errorTxt".
func ValidateStructIsPopulated(cfg interface{}) (err error) {
	errs := make([]string, 0)
	GetStructErrorTxt4UnsetFields(cfg, &errs)
	if len(errs) > 0 {
		err = fmt.Errorf("please supply values for %v", strings.Join(errs, ", "))
	}
	return
}

// ValidateStruct checks mandatory fields first and then applies any `validate` tags found on cfg.
// Validation failures are reported using the errorTxt tag of the failing field where one exists.
func ValidateStruct(cfg interface{}) error {
	if err := ValidateStructIsPopulated(cfg); err != nil {
		return err
	}
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	for _, fe := range verrs {
		name := fe.Field()
		if f, found := typ.FieldByName(fe.StructField()); found && f.Tag.Get("errorTxt") != "" {
			name = f.Tag.Get("errorTxt")
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%v must satisfy %v=%v (got %q)", name, fe.Tag(), fe.Param(), fmt.Sprint(fe.Value())))
		} else {
			msgs = append(msgs, fmt.Sprintf("%v must satisfy %v (got %q)", name, fe.Tag(), fmt.Sprint(fe.Value())))
		}
	}
	return fmt.Errorf("invalid values: %v", strings.Join(msgs, "; "))
}

// GetStructErrorTxt4UnsetFields will reflect over interface i and build a slice containing error text strings for any
// struct fields that are unset i.e. are the zero value for the given field type.
// The error text strings are fetched from the errorTxt tags values found in the supplied interface (struct)
// where tag mandatory:"yes" is set.
func GetStructErrorTxt4UnsetFields(i interface{}, errTags *[]string) {
	val := reflect.ValueOf(i)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return
	}
	typ := val.Type()
	for idx := 0; idx < val.NumField(); idx++ { // for each field in the struct...
		sf := typ.Field(idx)
		if sf.PkgPath != "" { // if the field is not exported...
			continue
		}
		f := val.Field(idx)
		switch f.Kind() {
		case reflect.Struct: // descend into nested structs.
			GetStructErrorTxt4UnsetFields(f.Interface(), errTags)
		case reflect.Map:
			if sf.Tag.Get("mandatory") == "yes" && f.Len() == 0 {
				*errTags = append(*errTags, sf.Tag.Get("errorTxt"))
				continue
			}
			for _, k := range f.MapKeys() {
				if mv := f.MapIndex(k); mv.Kind() == reflect.Struct {
					GetStructErrorTxt4UnsetFields(mv.Interface(), errTags)
				}
			}
		case reflect.Slice:
			if sf.Tag.Get("mandatory") == "yes" && f.Len() == 0 {
				*errTags = append(*errTags, sf.Tag.Get("errorTxt"))
			}
		default:
			if sf.Tag.Get("mandatory") == "yes" && f.IsZero() { // if the field is its zero value and it is mandatory...
				*errTags = append(*errTags, sf.Tag.Get("errorTxt"))
			}
		}
	}
}
