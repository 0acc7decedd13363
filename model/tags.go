package model

import (
	"fmt"
	"strconv"
	"strings"
)

// TagName is the struct tag key read by the registry.
const TagName = "db"

// fieldTag is the parsed form of a `db:"..."` tag.
//
//	ID    int64  `db:"id,pk,autoincrement"`
//	Email string `db:"email,unique,size=320"`
//	Org   int64  `db:",index=ix_member_org,kind=btree"`
//	Note  string `db:"note,type=text,default=''"`
//	Skip  string `db:"-"`
type fieldTag struct {
	name          string
	skip          bool
	primaryKey    bool
	autoIncrement bool
	notNull       bool
	nullable      bool
	unique        bool
	size          int
	typ           Type
	def           *string
	indices       []string
	uniqueGroups  []string
	kind          string
}

func parseTag(tag string) (fieldTag, error) {
	var ft fieldTag
	if tag == "-" {
		ft.skip = true
		return ft, nil
	}
	parts := strings.Split(tag, ",")
	ft.name = strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		key, val, hasVal := strings.Cut(p, "=")
		switch strings.ToLower(key) {
		case "":
		case "pk", "primarykey":
			ft.primaryKey = true
		case "autoincrement", "auto":
			ft.autoIncrement = true
		case "notnull":
			ft.notNull = true
		case "null", "nullable":
			ft.nullable = true
		case "unique":
			ft.unique = true
		case "size":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return ft, fmt.Errorf("invalid size %q", val)
			}
			ft.size = n
		case "type":
			t, err := ParseType(val)
			if err != nil {
				return ft, err
			}
			ft.typ = t
		case "default":
			v := val
			ft.def = &v
		case "index":
			ft.indices = append(ft.indices, groupName(val, hasVal))
		case "uniquegroup":
			if !hasVal || val == "" {
				return ft, fmt.Errorf("uniquegroup needs a name")
			}
			ft.uniqueGroups = append(ft.uniqueGroups, val)
		case "kind":
			ft.kind = val
		default:
			return ft, fmt.Errorf("unknown tag option %q", key)
		}
	}
	return ft, nil
}

func groupName(val string, hasVal bool) string {
	if !hasVal {
		return ""
	}
	return val
}

// ParseDefault converts a default literal from a tag or schema file to a host value of the
// column type. Quoted literals ('abc') are unquoted; "null" yields nil.
func ParseDefault(t Type, s string) (any, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return nil, nil
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), nil
	}
	switch t {
	case Integer, BigInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("default %q is not an integer", s)
		}
		return n, nil
	case Float, Decimal:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("default %q is not a number", s)
		}
		return f, nil
	case Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("default %q is not a boolean", s)
		}
		return b, nil
	}
	return s, nil
}
