// Package filter parses AIP-160 catalog filter expressions into a condition
// tree that translates to SQL or evaluates against a camp in memory.
package filter

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

type field struct {
	column string
	typ    *expr.Type
	value  func(domain.Camp) any
}

func optInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

// fields maps filter identifiers to camp columns.
var fields = map[string]field{
	"category":             {"category", filtering.TypeString, func(c domain.Camp) any { return string(c.Category) }},
	"camp_name":            {"camp_name", filtering.TypeString, func(c domain.Camp) any { return c.Name }},
	"min_age":              {"min_age", filtering.TypeInt, func(c domain.Camp) any { return optInt(c.MinAge) }},
	"max_age":              {"max_age", filtering.TypeInt, func(c domain.Camp) any { return optInt(c.MaxAge) }},
	"min_price":            {"min_price", filtering.TypeInt, func(c domain.Camp) any { return optInt(c.MinPrice) }},
	"max_price":            {"max_price", filtering.TypeInt, func(c domain.Camp) any { return optInt(c.MaxPrice) }},
	"is_closed":            {"is_closed", filtering.TypeBool, func(c domain.Camp) any { return c.IsClosed }},
	"has_extended_care":    {"has_extended_care", filtering.TypeBool, func(c domain.Camp) any { return c.HasExtendedCare }},
	"food_included":        {"food_included", filtering.TypeBool, func(c domain.Camp) any { return c.FoodIncluded }},
	"has_transport":        {"has_transport", filtering.TypeBool, func(c domain.Camp) any { return c.HasTransport }},
	"has_sibling_discount": {"has_sibling_discount", filtering.TypeBool, func(c domain.Camp) any { return c.HasSiblingDiscount }},
	"updated_at":           {"updated_at", filtering.TypeTimestamp, func(c domain.Camp) any { return c.UpdatedAt }},
}

// Declarations returns the identifiers a catalog filter may use.
func Declarations() (*filtering.Declarations, error) {
	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}
	for name, f := range fields {
		opts = append(opts, filtering.DeclareIdent(name, f.typ))
	}
	return filtering.NewDeclarations(opts...)
}

// Op is a condition node kind.
type Op string

const (
	OpAnd Op = "AND"
	OpOr  Op = "OR"
	OpNot Op = "NOT"
	OpCmp Op = "CMP"
)

// Condition is a parsed filter. A nil *Condition matches everything.
type Condition struct {
	Op       Op
	Children []*Condition
	Field    string
	Operator string
	Value    any
}

// SQL is a WHERE clause fragment with positional parameters.
type SQL struct {
	Clause string
	Params []any
}

// Parse parses an AIP-160 expression. The empty string parses to nil.
func Parse(filterStr string) (*Condition, error) {
	if strings.TrimSpace(filterStr) == "" {
		return nil, nil
	}
	decls, err := Declarations()
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return nil, invalid(fmt.Sprintf("parse filter: %v", err))
	}
	return translateExpr(parsed.CheckedExpr.GetExpr())
}

func invalid(msg string) error {
	return apperrors.WithMetadata(apperrors.CodeValidation, msg, map[string]string{"Field": "filter"})
}

func translateExpr(e *expr.Expr) (*Condition, error) {
	if e == nil {
		return nil, nil
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr)
	default:
		return nil, invalid(fmt.Sprintf("unsupported expression type: %T", kind))
	}
}

func translateCall(call *expr.Expr_Call) (*Condition, error) {
	switch call.Function {
	case "_&&_", "AND":
		return translateJunction(OpAnd, call.Args)
	case "_||_", "OR":
		return translateJunction(OpOr, call.Args)
	case "NOT", "-":
		if len(call.Args) != 1 {
			return nil, invalid("NOT requires 1 argument")
		}
		inner, err := translateExpr(call.Args[0])
		if err != nil {
			return nil, err
		}
		return &Condition{Op: OpNot, Children: []*Condition{inner}}, nil
	case "_==_", "=":
		return translateComparison(call.Args, "=")
	case "_!=_", "!=":
		return translateComparison(call.Args, "!=")
	case "_<_", "<":
		return translateComparison(call.Args, "<")
	case "_<=_", "<=":
		return translateComparison(call.Args, "<=")
	case "_>_", ">":
		return translateComparison(call.Args, ">")
	case "_>=_", ">=":
		return translateComparison(call.Args, ">=")
	default:
		return nil, invalid(fmt.Sprintf("unsupported function: %s", call.Function))
	}
}

func translateJunction(op Op, args []*expr.Expr) (*Condition, error) {
	if len(args) < 2 {
		return nil, invalid(fmt.Sprintf("%s requires 2 arguments", op))
	}
	cond := &Condition{Op: op}
	for _, arg := range args {
		child, err := translateExpr(arg)
		if err != nil {
			return nil, err
		}
		cond.Children = append(cond.Children, child)
	}
	return cond, nil
}

func translateComparison(args []*expr.Expr, op string) (*Condition, error) {
	if len(args) != 2 {
		return nil, invalid("comparison requires 2 arguments")
	}
	name, err := extractFieldName(args[0])
	if err != nil {
		return nil, err
	}
	if _, ok := fields[name]; !ok {
		return nil, invalid(fmt.Sprintf("unknown field: %s", name))
	}
	value, err := extractValue(args[1])
	if err != nil {
		return nil, err
	}
	return &Condition{Op: OpCmp, Field: name, Operator: op, Value: value}, nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", invalid("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", invalid(fmt.Sprintf("expected identifier, got %T", kind))
	}
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, invalid("nil expression")
	}
	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		return extractConstValue(kind.ConstExpr)
	case *expr.Expr_IdentExpr:
		// true and false parse as identifiers.
		switch kind.IdentExpr.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, invalid(fmt.Sprintf("unexpected identifier %s in value position", kind.IdentExpr.Name))
	case *expr.Expr_CallExpr:
		if kind.CallExpr.Function == "timestamp" && len(kind.CallExpr.Args) == 1 {
			return extractTimestampValue(kind.CallExpr.Args[0])
		}
		return nil, invalid(fmt.Sprintf("unsupported function in value position: %s", kind.CallExpr.Function))
	default:
		return nil, invalid(fmt.Sprintf("expected constant or timestamp, got %T", kind))
	}
}

func extractConstValue(c *expr.Constant) (any, error) {
	if c == nil {
		return nil, invalid("nil constant")
	}
	switch kind := c.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return kind.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return int64(kind.Uint64Value), nil
	case *expr.Constant_DoubleValue:
		return kind.DoubleValue, nil
	case *expr.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, invalid(fmt.Sprintf("unsupported constant type: %T", kind))
	}
}

func extractTimestampValue(e *expr.Expr) (time.Time, error) {
	if e == nil {
		return time.Time{}, invalid("nil timestamp argument")
	}
	constExpr, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return time.Time{}, invalid("timestamp argument must be a constant")
	}
	str, ok := constExpr.ConstExpr.ConstantKind.(*expr.Constant_StringValue)
	if !ok {
		return time.Time{}, invalid("timestamp argument must be a string")
	}
	ts, err := time.Parse(time.RFC3339, str.StringValue)
	if err != nil {
		return time.Time{}, invalid(fmt.Sprintf("invalid timestamp format: %v", err))
	}
	return ts.UTC(), nil
}

// SQL renders the condition. Timestamps become Unix milliseconds and
// booleans become 0/1 to match the camps table.
func (c *Condition) SQL() SQL {
	if c == nil {
		return SQL{}
	}
	switch c.Op {
	case OpAnd, OpOr:
		parts := make([]string, 0, len(c.Children))
		var params []any
		for _, child := range c.Children {
			s := child.SQL()
			if s.Clause == "" {
				s.Clause = "1=1"
			}
			parts = append(parts, s.Clause)
			params = append(params, s.Params...)
		}
		return SQL{Clause: "(" + strings.Join(parts, " "+string(c.Op)+" ") + ")", Params: params}
	case OpNot:
		inner := c.Children[0].SQL()
		if inner.Clause == "" {
			inner.Clause = "1=1"
		}
		return SQL{Clause: "(NOT " + inner.Clause + ")", Params: inner.Params}
	}
	value := c.Value
	switch v := value.(type) {
	case time.Time:
		value = v.UnixMilli()
	case bool:
		if v {
			value = int64(1)
		} else {
			value = int64(0)
		}
	}
	return SQL{Clause: fmt.Sprintf("%s %s ?", fields[c.Field].column, c.Operator), Params: []any{value}}
}

// Match evaluates the condition against a camp. Comparisons against an
// unknown (null) value are false, as in SQL.
func (c *Condition) Match(camp domain.Camp) bool {
	if c == nil {
		return true
	}
	switch c.Op {
	case OpAnd:
		for _, child := range c.Children {
			if !child.Match(camp) {
				return false
			}
		}
		return true
	case OpOr:
		for _, child := range c.Children {
			if child.Match(camp) {
				return true
			}
		}
		return false
	case OpNot:
		return !c.Children[0].Match(camp)
	}
	got := fields[c.Field].value(camp)
	if got == nil {
		return false
	}
	r, ok := compare(got, c.Value)
	if !ok {
		return false
	}
	switch c.Operator {
	case "=":
		return r == 0
	case "!=":
		return r != 0
	case "<":
		return r < 0
	case "<=":
		return r <= 0
	case ">":
		return r > 0
	case ">=":
		return r >= 0
	}
	return false
}

func compare(got, want any) (int, bool) {
	switch g := got.(type) {
	case string:
		w, ok := want.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(g, w), true
	case int64:
		var w float64
		switch v := want.(type) {
		case int64:
			w = float64(v)
		case float64:
			w = v
		default:
			return 0, false
		}
		return cmpFloat(float64(g), w), true
	case bool:
		w, ok := want.(bool)
		if !ok {
			return 0, false
		}
		if g == w {
			return 0, true
		}
		if !g {
			return -1, true
		}
		return 1, true
	case time.Time:
		w, ok := want.(time.Time)
		if !ok {
			return 0, false
		}
		return g.Compare(w), true
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
