package godatautil

import (
	"fmt"
	"strconv"
	"strings"

	sb "fknsrs.biz/p/sqlbuilder"
	"github.com/gost/godata"

	"fknsrs.biz/p/vidscribe/internal/sqlbuilderutil"
)

var (
	ErrFieldNotFound = fmt.Errorf("field not found")
)

// ParseQuery reads the $filter and $orderby forms. Either may be empty.
func ParseQuery(filter, orderBy string) (*godata.GoDataQuery, error) {
	var q godata.GoDataQuery

	if filter != "" {
		f, err := godata.ParseFilterString(filter)
		if err != nil {
			return nil, fmt.Errorf("godatautil.ParseQuery: invalid $filter: %w", err)
		}
		q.Filter = f
	}

	if orderBy != "" {
		o, err := godata.ParseOrderByString(orderBy)
		if err != nil {
			return nil, fmt.Errorf("godatautil.ParseQuery: invalid $orderby: %w", err)
		}
		q.OrderBy = o
	}

	return &q, nil
}

func MakeCondition(q *godata.GoDataQuery, table *sqlbuilderutil.Table) (sb.AsExpr, error) {
	if q == nil || q.Filter == nil {
		return nil, nil
	}

	expr, err := makeCondition(q.Filter.Tree, table)
	if err != nil {
		return nil, fmt.Errorf("godatautil.MakeCondition: %w", err)
	}

	return expr, nil
}

func makeCondition(n *godata.ParseNode, table *sqlbuilderutil.Table) (sb.AsExpr, error) {
	switch n.Token.Type {
	case godata.FilterTokenLogical:
		switch n.Token.Value {
		case "eq", "ne":
			return makeComparison(n, table)
		}

		var a []sb.AsExpr
		for _, e := range n.Children {
			expr, err := makeCondition(e, table)
			if err != nil {
				return nil, fmt.Errorf("godatautil.makeCondition: %w", err)
			}
			a = append(a, expr)
		}
		switch n.Token.Value {
		case "and", "or":
			return sb.BooleanOperator(n.Token.Value, a...), nil
		default:
			return nil, fmt.Errorf("godatautil.makeCondition: unrecognised logical filter type %q", n.Token.Value)
		}
	case godata.FilterTokenFunc:
		switch n.Token.Value {
		case "substringof":
			if len(n.Children) != 2 {
				return nil, fmt.Errorf("godatautil.makeCondition: substringof must have exactly two arguments; instead had %d", len(n.Children))
			}

			// accept both substringof('needle', field) and substringof(field, 'needle')
			field, needle := n.Children[0], n.Children[1]
			if field.Token.Type == godata.FilterTokenString {
				field, needle = needle, field
			}

			if field.Token.Type != godata.FilterTokenLiteral || needle.Token.Type != godata.FilterTokenString {
				return nil, fmt.Errorf("godatautil.makeCondition: substringof needs a field and a quoted string; got %q and %q", field.Token.Value, needle.Token.Value)
			}

			c, ok := table.Lookup(field.Token.Value)
			if !ok {
				return nil, fmt.Errorf("godatautil.makeCondition: could not find field %q: %w", field.Token.Value, ErrFieldNotFound)
			}

			return sb.Ne(
				sb.Func(
					"instr",
					sb.Func("lower", c),
					sb.Func("lower", sb.Bind(unquote(needle.Token.Value))),
				),
				sb.Literal("0"),
			), nil
		default:
			return nil, fmt.Errorf("godatautil.makeCondition: unrecognised function %s", n.Token.Value)
		}
	default:
		return nil, fmt.Errorf("godatautil.makeCondition: unexpected %q", n.Token.Value)
	}
}

func makeComparison(n *godata.ParseNode, table *sqlbuilderutil.Table) (sb.AsExpr, error) {
	if len(n.Children) != 2 {
		return nil, fmt.Errorf("godatautil.makeComparison: %s must have exactly two arguments; instead had %d", n.Token.Value, len(n.Children))
	}

	left, right := n.Children[0], n.Children[1]

	if left.Token.Type != godata.FilterTokenLiteral {
		return nil, fmt.Errorf("godatautil.makeComparison: %s needs a field name on the left; got %q", n.Token.Value, left.Token.Value)
	}

	c, ok := table.Lookup(left.Token.Value)
	if !ok {
		return nil, fmt.Errorf("godatautil.makeComparison: could not find field %q: %w", left.Token.Value, ErrFieldNotFound)
	}

	op := "="
	if n.Token.Value == "ne" {
		op = "!="
	}

	switch right.Token.Type {
	case godata.FilterTokenString:
		return sb.BinaryOperator(op, c, sb.Bind(unquote(right.Token.Value))), nil
	case godata.FilterTokenInteger:
		v, err := strconv.Atoi(right.Token.Value)
		if err != nil {
			return nil, fmt.Errorf("godatautil.makeComparison: %w", err)
		}
		return sb.BinaryOperator(op, c, sb.Bind(v)), nil
	case godata.FilterTokenNull:
		if op == "=" {
			return sb.BinaryOperator("is", c, sb.Literal("null")), nil
		}
		return sb.BinaryOperator("is not", c, sb.Literal("null")), nil
	default:
		return nil, fmt.Errorf("godatautil.makeComparison: %s needs a string, integer or null on the right; got %q", n.Token.Value, right.Token.Value)
	}
}

func MakeOrders(q *godata.GoDataQuery, table *sqlbuilderutil.Table, defaultOrders ...sb.AsOrderingTerm) ([]sb.AsOrderingTerm, error) {
	if q == nil || q.OrderBy == nil {
		return defaultOrders, nil
	}

	var a []sb.AsOrderingTerm

	for _, item := range q.OrderBy.OrderByItems {
		c, ok := table.Lookup(item.Field.Value)
		if !ok {
			return nil, fmt.Errorf("godatautil.MakeOrders: could not find field %q: %w", item.Field.Value, ErrFieldNotFound)
		}

		switch item.Order {
		case "asc":
			a = append(a, sb.OrderAsc(c))
		case "desc":
			a = append(a, sb.OrderDesc(c))
		}
	}

	return a, nil
}

func unquote(s string) string {
	return strings.Replace(s[1:len(s)-1], "''", "'", -1)
}
