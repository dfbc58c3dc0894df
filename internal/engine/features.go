package engine

// Feature represents a DDL capability that may vary between engines.
type Feature int

const (
	// FeatureEnumTypes indicates CREATE TYPE ... AS ENUM.
	FeatureEnumTypes Feature = iota

	// FeatureExtensions indicates CREATE EXTENSION.
	FeatureExtensions

	// FeatureArrays indicates array column types.
	FeatureArrays

	// FeatureAlterConstraints indicates ALTER TABLE ... ADD CONSTRAINT. Without
	// it foreign keys are declared inside CREATE TABLE.
	FeatureAlterConstraints

	// FeaturePartitioning indicates PARTITION BY table clauses.
	FeaturePartitioning

	// FeatureRowLevelSecurity indicates row-level security and CREATE POLICY.
	FeatureRowLevelSecurity

	// FeatureFullTextSearch indicates GIN indexes over tsvector expressions.
	FeatureFullTextSearch

	// FeatureTableComments indicates COMMENT ON TABLE.
	FeatureTableComments

	// FeatureTriggerProcedures indicates triggers that EXECUTE PROCEDURE.
	FeatureTriggerProcedures

	// FeatureMaterializedViews indicates CREATE MATERIALIZED VIEW.
	FeatureMaterializedViews
)

// featureNames maps features to human-readable names.
var featureNames = map[Feature]string{
	FeatureEnumTypes:         "enum_types",
	FeatureExtensions:        "extensions",
	FeatureArrays:            "arrays",
	FeatureAlterConstraints:  "alter_constraints",
	FeaturePartitioning:      "partitioning",
	FeatureRowLevelSecurity:  "row_level_security",
	FeatureFullTextSearch:    "fulltext_search",
	FeatureTableComments:     "table_comments",
	FeatureTriggerProcedures: "trigger_procedures",
	FeatureMaterializedViews: "materialized_views",
}

// String returns the human-readable name of a feature.
func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return "unknown"
}
