package diagnostics

// Diagnostic codes. E1xx are errors, W1xx validation warnings and L2xx lint
// findings.
const (
	CodeLex                 = "E101"
	CodeParse               = "E102"
	CodeDuplicateDecl       = "E103"
	CodeUnresolvedFK        = "E104"
	CodeUnresolvedType      = "E105"
	CodeMultiplePK          = "E106"
	CodeBadKeyColumns       = "E107"
	CodeDuplicateConstraint = "E108"
	CodeUnbalancedCheck     = "E109"
	CodeDuplicateField      = "E110"
	CodeBadFeatureColumn    = "E111"
	CodeDuplicateVariant    = "E112"

	CodeNoPK            = "W101"
	CodeDefaultMismatch = "W102"
	CodeMapUnsupported  = "W103"
	CodeCompositeFK     = "W104"
	CodeUnknownSidecar  = "W105"

	CodeRedundantPK  = "L201"
	CodeUnindexedFK  = "L202"
	CodeOrphanEntity = "L203"
	CodeUnusedEnum   = "L204"
	CodeMissingFK    = "L205"
)

var descriptions = map[string]string{
	CodeLex:                 "Malformed token",
	CodeParse:               "Malformed statement",
	CodeDuplicateDecl:       "Duplicate entity or enum declaration",
	CodeUnresolvedFK:        "Foreign key target does not resolve",
	CodeUnresolvedType:      "Type or enum reference does not resolve",
	CodeMultiplePK:          "More than one primary key construct",
	CodeBadKeyColumns:       "Key list is empty or names an unknown field",
	CodeDuplicateConstraint: "Constraint or directive repeated",
	CodeUnbalancedCheck:     "CHECK expression parentheses are unbalanced",
	CodeDuplicateField:      "Duplicate field name",
	CodeBadFeatureColumn:    "Feature references an unknown column",
	CodeDuplicateVariant:    "Duplicate enum variant",
	CodeNoPK:                "Entity has no primary key",
	CodeDefaultMismatch:     "DEFAULT literal does not fit the field type",
	CodeMapUnsupported:      "Map semantics are not supported",
	CodeCompositeFK:         "Foreign key targets a composite key",
	CodeUnknownSidecar:      "Sidecar names an unknown entity",
	CodeRedundantPK:         "Redundant primary key constraint",
	CodeUnindexedFK:         "Foreign key column is not indexed",
	CodeOrphanEntity:        "Entity has no relationships",
	CodeUnusedEnum:          "Enum is never used",
	CodeMissingFK:           "Entity-typed field without FK",
}

// CodeDescription returns a human-readable description for a code.
func CodeDescription(code string) string {
	if desc, ok := descriptions[code]; ok {
		return desc
	}
	return "Unknown code"
}
