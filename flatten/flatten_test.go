package flatten_test

import (
	"encoding/json"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/openetl/flatten"
)

func mustDecode(s string) interface{} {
	v, err := flatten.DecodeOrdered(strings.NewReader(s))
	Expect(err).NotTo(HaveOccurred())
	return v
}

func strings2(vals []flatten.Value) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.String())
	}
	return out
}

var _ = Describe("Accumulate", func() {
	It("joins nested keys and sequence indexes with underscores", func() {
		rs := flatten.Accumulate(mustDecode(`{"user": {"name": "x", "tags": ["a","b"]}}`))
		Expect(rs.Keys()).To(Equal([]string{"user_name", "user_tags_0", "user_tags_1"}))
		Expect(strings2(rs.Values("user_name"))).To(Equal([]string{"x"}))
		Expect(strings2(rs.Values("user_tags_0"))).To(Equal([]string{"a"}))
		Expect(strings2(rs.Values("user_tags_1"))).To(Equal([]string{"b"}))
	})

	It("is idempotent on flat input", func() {
		rs := flatten.Accumulate(mustDecode(`{"b": 2, "a": "one", "c": true}`))
		Expect(rs.Keys()).To(Equal([]string{"b", "a", "c"}))
		for _, k := range rs.Keys() {
			Expect(rs.Values(k)).To(HaveLen(1))
		}
		Expect(rs.Values("c")[0].Kind).To(Equal(flatten.KindBool))
	})

	It("accumulates the same path across documents into one column", func() {
		rs := flatten.Accumulate(mustDecode(`{"id": 1}`), mustDecode(`{"id": 2}`), mustDecode(`{"id": 3}`))
		Expect(rs.Len()).To(Equal(1))
		Expect(strings2(rs.Values("id"))).To(Equal([]string{"1", "2", "3"}))
	})

	It("adds no keys for empty containers", func() {
		rs := flatten.Accumulate(mustDecode(`{"a": {}, "b": [], "c": {"d": []}}`))
		Expect(rs.Len()).To(Equal(0))
	})

	It("keeps mixed types at the same path as tagged values", func() {
		rs := flatten.Accumulate(mustDecode(`{"a": 1}`), mustDecode(`{"a": "x"}`), mustDecode(`{"a": null}`), mustDecode(`{"a": {"b": 2}}`))
		vals := rs.Values("a")
		Expect(vals).To(HaveLen(3))
		Expect(vals[0].Kind).To(Equal(flatten.KindNumber))
		Expect(vals[1].Kind).To(Equal(flatten.KindString))
		Expect(vals[2].IsNull()).To(BeTrue())
		Expect(strings2(rs.Values("a_b"))).To(Equal([]string{"2"}))
	})

	It("sorts keys of plain maps so output is stable", func() {
		doc := map[string]interface{}{"z": 1.0, "a": 2.0, "m": []interface{}{"p"}}
		Expect(flatten.Accumulate(doc).Keys()).To(Equal([]string{"a", "m_0", "z"}))
	})

	It("records a bare scalar under the root key", func() {
		rs := flatten.Accumulate("hello")
		Expect(rs.Keys()).To(Equal([]string{flatten.RootKey}))
	})

	It("keys root sequences by index", func() {
		rs := flatten.Accumulate(mustDecode(`[{"a":1},{"a":2}]`))
		Expect(rs.Keys()).To(Equal([]string{"0_a", "1_a"}))
	})

	It("renders as an ordered JSON object", func() {
		rs := flatten.Accumulate(mustDecode(`{"b": 1, "a": [true, null]}`))
		b, err := json.Marshal(rs)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal(`{"b":[1],"a_0":[true],"a_1":[null]}`))
	})

	It("is safe to call concurrently on independent inputs", func() {
		var wg sync.WaitGroup
		results := make([][]string, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = flatten.Accumulate(map[string]interface{}{"x": []interface{}{1.0, 2.0}}).Keys()
			}(i)
		}
		wg.Wait()
		for _, r := range results {
			Expect(r).To(Equal([]string{"x_0", "x_1"}))
		}
	})
})

var _ = Describe("AccumulateRecords", func() {
	It("keeps sparse records in their own rows", func() {
		rs := flatten.AccumulateRecords(mustDecode(`{"a":1}`), mustDecode(`{"a":3,"b":"x"}`))
		Expect(rs.Keys()).To(Equal([]string{"a", "b"}))
		Expect(strings2(rs.Values("a"))).To(Equal([]string{"1", "3"}))
		b := rs.Values("b")
		Expect(b).To(HaveLen(2))
		Expect(b[0].IsNull()).To(BeTrue())
		Expect(b[1].String()).To(Equal("x"))
	})

	It("pads a key missing from a later record with null", func() {
		rs := flatten.AccumulateRecords(mustDecode(`{"a":1,"b":"x"}`), mustDecode(`{"a":2}`), mustDecode(`{"b":"z"}`))
		a := rs.Values("a")
		Expect(a).To(HaveLen(3))
		Expect(a[2].IsNull()).To(BeTrue())
		b := rs.Values("b")
		Expect(b).To(HaveLen(3))
		Expect(b[1].IsNull()).To(BeTrue())
		Expect(b[2].String()).To(Equal("z"))
	})

	It("gives every column one value per record", func() {
		rs := flatten.AccumulateRecords(mustDecode(`{"u":{"n":"p","t":["a"]}}`), mustDecode(`{"id":7}`))
		for _, k := range rs.Keys() {
			Expect(rs.Values(k)).To(HaveLen(2), k)
		}
	})
})

var _ = Describe("Rows", func() {
	It("returns one row per key for flat input with values unchanged", func() {
		rows := flatten.Rows(map[string]interface{}{"a": 1.0, "b": "two"})
		Expect(rows).To(Equal([]flatten.Row{{Key: "a", Value: 1.0}, {Key: "b", Value: "two"}}))
	})

	It("sanitizes keys and recurses into mappings and sequences", func() {
		rows := flatten.Rows(mustDecode(`{"User Name!": {"First": "x"}, "Tags": ["a", {"Deep": 1}]}`))
		keys := make([]string, 0, len(rows))
		for _, r := range rows {
			keys = append(keys, r.Key)
		}
		Expect(keys).To(Equal([]string{"username_first", "tags_0", "tags_1_deep"}))
	})
})

var _ = Describe("Records", func() {
	It("splits root sequences into records", func() {
		recs := flatten.Records([]interface{}{
			[]interface{}{map[string]interface{}{"a": 1.0}, map[string]interface{}{"a": 2.0}},
			map[string]interface{}{"a": 3.0},
		}, "")
		Expect(recs).To(HaveLen(3))
		Expect(strings2(flatten.Accumulate(recs...).Values("a"))).To(Equal([]string{"1", "2", "3"}))
	})

	It("uses the value at the records key when given", func() {
		recs := flatten.Records([]interface{}{mustDecode(`{"meta": 1, "data": [{"id": 1}, {"id": 2}]}`)}, "data")
		Expect(recs).To(HaveLen(2))
	})
})

var _ = Describe("Value", func() {
	It("formats numbers without exponents", func() {
		Expect(flatten.NewValue(1e21).String()).To(Equal("1000000000000000000000"))
		Expect(flatten.NewValue(json.Number("2.5e3")).String()).To(Equal("2500"))
		Expect(flatten.NewValue(0.25).String()).To(Equal("0.25"))
		Expect(flatten.NewValue(nil).String()).To(Equal(""))
		Expect(flatten.NewValue(false).String()).To(Equal("false"))
	})
})

var _ = Describe("DecodeOrdered", func() {
	It("rejects trailing data", func() {
		_, err := flatten.DecodeOrdered(strings.NewReader(`{"a":1} {"b":2}`))
		Expect(err).To(HaveOccurred())
	})
})
