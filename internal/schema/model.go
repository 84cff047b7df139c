// Package schema implements spec.md §4.7/§3.2: a typed model of one
// PostgreSQL database and the catalog-query introspection that builds it.
// It is the Go analog of the teacher's internal/router package in one
// respect only — both read Postgres-side state into a typed in-process
// structure before acting on it — but the model itself and every query
// are grounded in original_source/elefant-tools/src/models/*.rs and
// src/schema_reader/*.rs, since the teacher has no schema-introspection
// code of its own to generalize.
package schema

// ObjectId is an opaque cross-object dependency key, spec.md §3.2. Two
// objects compare equal by (Schema, Name, Kind). The reader records a
// table's foreign-key targets in its DependsOn; DDL emission does not
// read these edges — statement order comes from the fixed groups in
// internal/copier.
type ObjectId struct {
	Schema string
	Name   string
	Kind   string
}

// DataFormat is the wire format two copy peers negotiate, spec.md §3.2
// and §4.8.
type DataFormat int

const (
	DataFormatText DataFormat = iota
	DataFormatBinary
)

func (f DataFormat) String() string {
	if f == DataFormatBinary {
		return "binary"
	}
	return "text"
}

// PostgresDatabase is the root of the introspected model, spec.md §3.2.
type PostgresDatabase struct {
	Schemas   []*PostgresSchema
	Extensions []Extension
	Timescale TimescaleInfo
}

func (db *PostgresDatabase) SchemaNamed(name string) *PostgresSchema {
	for _, s := range db.Schemas {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (db *PostgresDatabase) getOrCreateSchema(name string) *PostgresSchema {
	if s := db.SchemaNamed(name); s != nil {
		return s
	}
	s := &PostgresSchema{Name: name}
	db.Schemas = append(db.Schemas, s)
	return s
}

// Extension is a row of pg_extension.
type Extension struct {
	Name    string
	Version string
	Schema  string
}

// TimescaleInfo records whether the timescaledb extension is present and
// its introspected hypertables/jobs, spec.md §4.7's "TimescaleDB awareness".
type TimescaleInfo struct {
	Installed bool
	Version   string
	Jobs      []TimescaleJob
}

// TimescaleJob is a user-defined background job from timescaledb_information.jobs.
type TimescaleJob struct {
	JobID        int32
	ApplicationName string
	Schedule     string
	ProcName     string
	Config       string
}

// PostgresSchema groups every object namespaced under one schema name,
// spec.md §3.2.
type PostgresSchema struct {
	Name      string
	ObjectID  ObjectId
	Tables    []*PostgresTable
	Sequences []*PostgresSequence
	Views     []*PostgresView
	Functions []*PostgresFunction
	Triggers  []*PostgresTrigger
	Enums     []*PostgresEnum
	Domains   []*PostgresDomain
	Comment   string
}

func (s *PostgresSchema) TableNamed(name string) *PostgresTable {
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// TableKind discriminates spec.md §3.2's table_type variant.
type TableKind int

const (
	TablePlain TableKind = iota
	TablePartitionedParent
	TablePartitionedChild
	TableInherited
	TableTimescaleHypertable
)

// PartitionStrategy is the method a PartitionedParent table declares,
// spec.md §4.7 "Partitioning".
type PartitionStrategy int

const (
	PartitionNone PartitionStrategy = iota
	PartitionList
	PartitionRange
	PartitionHash
)

// PostgresTable is one base table, spec.md §3.2.
type PostgresTable struct {
	Name               string
	Columns            []*PostgresColumn
	Constraints        []PostgresConstraint
	Indices            []*PostgresIndex
	StorageParameters  []string
	ObjectID           ObjectId
	DependsOn          []ObjectId
	Comment            string

	Kind TableKind

	// PartitionedParent fields.
	PartitionStrategy PartitionStrategy
	PartitionColumns  []string
	PartitionDefaultChild string

	// PartitionedChild fields.
	ParentTable         string
	PartitionExpression string

	// Inherited fields.
	InheritsFrom []string

	// TimescaleHypertable fields.
	Hypertable *HypertableInfo
}

// HypertableInfo holds a hypertable's dimensions and policies, spec.md
// §4.7's TimescaleDB awareness clause.
type HypertableInfo struct {
	Dimensions  []HypertableDimension
	Compression *HypertableCompression
	Retention   *HypertableRetention
	ContinuousAggregates []ContinuousAggregate
}

// HypertableDimension is one partitioning dimension of a hypertable:
// either time-interval, integer-interval, or hash-partitioned.
type HypertableDimension struct {
	ColumnName      string
	TimeInterval    string // e.g. "7 days", empty when not time-partitioned
	IntegerInterval int64
	NumPartitions   int32 // hash partition count, 0 when not hash-partitioned
}

type HypertableCompression struct {
	SegmentBy        []string
	OrderBy          []HypertableOrderColumn
	ChunkTimeInterval string
	ScheduleInterval  string
	CompressAfter     string
}

type HypertableOrderColumn struct {
	ColumnName string
	Descending bool
	NullsFirst bool
}

type HypertableRetention struct {
	Schedule  string
	DropAfter string
}

type ContinuousAggregate struct {
	ViewName    string
	StartOffset string
	EndOffset   string
	Schedule    string
}

// PostgresColumn is one column definition, spec.md §3.2.
type PostgresColumn struct {
	Name                string
	OrdinalPosition     int32
	IsNullable          bool
	DataType            string
	ArrayDimensions     int32
	DataTypeLength      *int32
	DefaultValue        string
	GeneratedExpression string
	Identity            IdentityKind
	Comment             string
}

type IdentityKind int

const (
	IdentityNone IdentityKind = iota
	IdentityAlways
	IdentityByDefault
)

// PostgresConstraint is spec.md §3.2's constraint variant, realized in Go
// as an interface with one concrete type per variant (the idiomatic
// replacement for a Rust enum, the same approach internal/protocol takes
// for BackendMessage).
type PostgresConstraint interface {
	isConstraint()
	ConstraintName() string
}

type PostgresPrimaryKey struct {
	Name    string
	Columns []string
}

func (PostgresPrimaryKey) isConstraint()          {}
func (c PostgresPrimaryKey) ConstraintName() string { return c.Name }

// ForeignKeyAction is spec.md §3.2's FK action enum.
type ForeignKeyAction int

const (
	FKNoAction ForeignKeyAction = iota
	FKRestrict
	FKCascade
	FKSetNull
	FKSetDefault
)

type PostgresForeignKey struct {
	Name              string
	Columns           []string
	ReferencedSchema  string // empty means same schema as the owning table
	ReferencedTable   string
	ReferencedColumns []string
	OnUpdate          ForeignKeyAction
	OnDelete          ForeignKeyAction
	// SetNullColumns narrows SetNull to specific columns; empty means all
	// FK columns, per spec.md's "SetNull{affected_cols?}".
	SetNullColumns []string
}

func (PostgresForeignKey) isConstraint()            {}
func (c PostgresForeignKey) ConstraintName() string { return c.Name }

type PostgresUnique struct {
	Name          string
	IndexName     string
	DistinctNulls bool
}

func (PostgresUnique) isConstraint()            {}
func (c PostgresUnique) ConstraintName() string { return c.Name }

type PostgresCheck struct {
	Name       string
	Expression string
	Comment    string
}

func (PostgresCheck) isConstraint()            {}
func (c PostgresCheck) ConstraintName() string { return c.Name }

// SortDirection / NullsOrder describe one indexed/ordered column, spec.md
// §3.2.
type SortDirection int

const (
	SortAscending SortDirection = iota
	SortDescending
)

type NullsOrder int

const (
	NullsDefault NullsOrder = iota
	NullsFirst
	NullsLast
)

// IndexKeyColumn is one column or expression of an index's key, spec.md
// §3.2's "(expr,ordinal,direction?,nulls_order?)".
type IndexKeyColumn struct {
	Expression string
	Ordinal    int32
	Direction  SortDirection
	Nulls      NullsOrder
}

// IndexConstraintKind discriminates whether an index merely exists, or
// also backs a PRIMARY KEY / UNIQUE constraint, spec.md §3.2.
type IndexConstraintKind int

const (
	IndexPlain IndexConstraintKind = iota
	IndexPrimaryKey
	IndexUnique
)

// PostgresIndex is one index definition, spec.md §3.2.
type PostgresIndex struct {
	Name                string
	KeyColumns          []IndexKeyColumn
	IncludedColumns      []string
	IndexType           string // "btree", "gin", "gist", "brin", ...
	Predicate           string
	IndexConstraintType IndexConstraintKind
	DistinctNulls       bool // meaningful only when IndexConstraintType == IndexUnique
	StorageParameters   []string
	Comment             string
}

// PostgresSequence mirrors one row of information_schema.sequences plus
// its current last_value, spec.md §4.7.
type PostgresSequence struct {
	Name       string
	DataType   string
	StartValue int64
	Increment  int64
	MinValue   int64
	MaxValue   int64
	CacheSize  int64
	Cycle      bool
	LastValue  *int64
	ObjectID   ObjectId
	DependsOn  []ObjectId
}

// PostgresView is one view or materialized view, spec.md §4.7.
type PostgresView struct {
	Name         string
	Definition   string
	Columns      []PostgresViewColumn
	Materialized bool
	ObjectID     ObjectId
	DependsOn    []ObjectId
	Comment      string
}

type PostgresViewColumn struct {
	Name            string
	OrdinalPosition int32
}

// FunctionKind distinguishes an ordinary function from an aggregate,
// window, or procedure — spec.md §4.7's "functions and aggregates".
type FunctionKind int

const (
	FunctionOrdinary FunctionKind = iota
	FunctionAggregate
	FunctionWindow
	FunctionProcedure
)

// Volatility is a function's declared volatility.
type Volatility int

const (
	VolatilityVolatile Volatility = iota
	VolatilityStable
	VolatilityImmutable
)

// PostgresFunction models one routine, spec.md §4.7's full attribute list.
type PostgresFunction struct {
	Name             string
	Language         string
	Kind             FunctionKind
	Arguments        string
	Result           string
	EstimatedCost    float64
	EstimatedRows    float64
	SupportFunction  string
	SecurityDefiner  bool
	LeakProof        bool
	Strict           bool
	ReturnsSet       bool
	Volatility       Volatility
	Parallel         string // "safe", "unsafe", "restricted"
	SQLBody          string
	Configuration    []string
	ObjectID         ObjectId
	DependsOn        []ObjectId
	Comment          string
}

// PostgresTrigger is one row of information_schema.triggers / pg_trigger.
type PostgresTrigger struct {
	Name         string
	TableName    string
	Timing       string // "BEFORE", "AFTER", "INSTEAD OF"
	Events       []string
	FunctionName string
	Definition   string
	ObjectID     ObjectId
	DependsOn    []ObjectId
}

// PostgresEnum is one CREATE TYPE ... AS ENUM.
type PostgresEnum struct {
	Name     string
	Values   []string
	Comment  string
	ObjectID ObjectId
}

// PostgresDomain is one CREATE DOMAIN.
type PostgresDomain struct {
	Name         string
	BaseType     string
	NotNull      bool
	DefaultValue string
	CheckClause  string
	ObjectID     ObjectId
}
