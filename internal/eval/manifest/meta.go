package manifest

import (
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// metaSubAttr names the sub-attribute that summarizes an object-valued meta
// entry. Licenses are summarized by their short name and maintainers by
// their email; everything else falls back to "name".
func metaSubAttr(metaName string) string {
	switch metaName {
	case "license":
		return "shortName"
	case "maintainers":
		return "email"
	default:
		return "name"
	}
}

// metaString flattens a meta value to a single string: strings verbatim,
// lists and sets recursively, objects and maps contribute the named
// sub-attribute. Other value types are dropped.
func metaString(v cty.Value, subAttr string) string {
	var parts []string
	var rec func(v cty.Value)
	rec = func(v cty.Value) {
		if v.IsNull() || !v.IsKnown() {
			return
		}
		ty := v.Type()
		switch {
		case ty == cty.String:
			parts = append(parts, v.AsString())
		case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
			for it := v.ElementIterator(); it.Next(); {
				_, ev := it.Element()
				rec(ev)
			}
		case ty.IsObjectType():
			if ty.HasAttribute(subAttr) {
				rec(v.GetAttr(subAttr))
			}
		case ty.IsMapType():
			key := cty.StringVal(subAttr)
			if v.HasIndex(key).True() {
				rec(v.Index(key))
			}
		}
	}
	rec(v)
	return strings.Join(parts, ", ")
}
