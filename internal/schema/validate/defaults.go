package validate

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/electwix/erd-catalyst/internal/diagnostics"
	"github.com/electwix/erd-catalyst/internal/schema/model"
	"github.com/electwix/erd-catalyst/internal/types"
)

// defaults compares every DEFAULT literal with the field's type class.
// Call forms such as now() are never checked.
func (v *validator) defaults() {
	for _, e := range v.schema.Entities {
		for _, f := range e.Fields {
			for _, c := range f.Constraints {
				if c.Kind != model.Default || c.Default == nil {
					continue
				}
				problem := v.defaultProblem(f, *c.Default)
				if problem == "" {
					continue
				}
				v.add(diagnostics.Warningf("field %s.%s: DEFAULT %s %s", e.Name, f.Name, c.Default.Text, problem).
					WithCode(diagnostics.CodeDefaultMismatch).
					AtSpan(v.schema.Path, c.Span).
					InEntity(e.Name).
					OnField(f.Name))
			}
		}
	}
}

// defaultProblem returns why lit does not fit f, or "" when it does.
func (v *validator) defaultProblem(f *model.Field, lit model.Value) string {
	switch lit.Kind {
	case model.ValueCall:
		return ""
	case model.ValueNull:
		if f.Has(model.NotNull) {
			return "contradicts NOT NULL"
		}
		return ""
	case model.ValueList:
		if f.Cardinality == model.Scalar {
			return "is a list but the field is scalar"
		}
		return ""
	}

	switch f.Type.Kind {
	case model.TypeEnum:
		enum := v.schema.Enum(f.Type.Enum)
		if lit.Kind == model.ValueNumber || !enum.HasVariant(lit.Unquoted()) {
			return fmt.Sprintf("is not a variant of %s", enum.Name)
		}
		return ""
	case model.TypeBase:
	default:
		return ""
	}

	category, _ := types.Lookup(f.Type.Name)
	class := types.ClassOf(category)
	if lit.Kind == model.ValueIdent {
		// Bare identifiers are keywords such as CURRENT_TIMESTAMP or TRUE;
		// only booleans are strict about them.
		if class == types.ClassBoolean && !isBoolWord(lit.Text) {
			return "is not a boolean"
		}
		return ""
	}

	switch class {
	case types.ClassNumeric:
		if lit.Kind != model.ValueNumber {
			return "is not numeric"
		}
		return numericProblem(category, f.Type.Args, lit.Text)
	case types.ClassText, types.ClassJSON:
		if lit.Kind != model.ValueString {
			return "is not a string"
		}
		return lengthProblem(category, f.Type.Args, lit.Unquoted())
	case types.ClassUUID:
		if lit.Kind != model.ValueString {
			return "is not a string"
		}
		if _, err := uuid.Parse(lit.Unquoted()); err != nil {
			return "is not a valid UUID"
		}
	case types.ClassTemporal:
		if lit.Kind != model.ValueString {
			return "is not a string"
		}
	case types.ClassBoolean:
		if lit.Kind == model.ValueNumber && lit.Text != "0" && lit.Text != "1" {
			return "is not a boolean"
		}
		if lit.Kind == model.ValueString && !isBoolWord(lit.Unquoted()) {
			return "is not a boolean"
		}
	}
	return ""
}

func isBoolWord(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "t", "f", "yes", "no", "on", "off":
		return true
	default:
		return false
	}
}

// numericProblem checks a number against integer categories and the
// precision and scale of DECIMAL(p, s).
func numericProblem(category types.Category, args []model.Value, text string) string {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return "is not a number"
	}
	if types.IsInteger(category) {
		if !d.IsInteger() {
			return "is not an integer"
		}
		return ""
	}
	if category != types.CategoryDecimal || len(args) == 0 {
		return ""
	}
	precision, ok := intArg(args, 0)
	if !ok {
		return ""
	}
	scale, _ := intArg(args, 1)

	intPart, frac, _ := strings.Cut(d.Abs().String(), ".")
	intDigits := len(strings.TrimLeft(intPart, "0"))
	if len(frac) > scale || intDigits > precision-scale {
		return fmt.Sprintf("does not fit precision %d, scale %d", precision, scale)
	}
	return ""
}

func lengthProblem(category types.Category, args []model.Value, s string) string {
	if category != types.CategoryVarchar && category != types.CategoryChar {
		return ""
	}
	n, ok := intArg(args, 0)
	if ok && len([]rune(s)) > n {
		return fmt.Sprintf("is longer than %d characters", n)
	}
	return ""
}

func intArg(args []model.Value, i int) (int, bool) {
	if i >= len(args) || args[i].Kind != model.ValueNumber {
		return 0, false
	}
	d, err := decimal.NewFromString(args[i].Text)
	if err != nil || !d.IsInteger() {
		return 0, false
	}
	return int(d.IntPart()), true
}
