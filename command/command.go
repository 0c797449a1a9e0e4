// Package command holds the data model the core's extended-query engine
// consumes and annotates: Statement, Parameter, Command (§3). The
// DbCommand/DbDataReader façade and the named-parameter SQL
// preprocessor that build these from caller-facing API calls are
// outside the core's scope (§1); this package is the contract boundary
// between them and pgconn.
package command

import "github.com/srhinds/gopq/pgproto"

// Direction is a Parameter's declared direction. The core accepts only
// Input; Output/InputOutput must be rejected by the façade before a
// Statement reaches the core (§3, §8 scenario 5).
type Direction int

const (
	Input Direction = iota
	Output
	InputOutput
)

// Parameter is one input value bound into a Statement.
type Parameter struct {
	Value     any
	Direction Direction

	// Name is used only by the external named-parameter preprocessor; the
	// core never reads it.
	Name string

	// OID is the PostgreSQL type OID selected for this parameter, either
	// by the caller or inferred by the type handler registry at Bind
	// time.
	OID uint32
}

// StatementType classifies a Statement's CommandComplete tag.
type StatementType int

const (
	Unknown StatementType = iota
	Select
	Insert
	Update
	Delete
	Other
)

// Statement is one SQL text with positional placeholders ($1, $2, ...),
// its ordered input parameters, and the execution-time results the
// connector attaches once it completes.
type Statement struct {
	SQL        string
	Parameters []Parameter

	// Populated by the connector after execution.
	Type           StatementType
	Rows           int64
	OID            uint32
	RowDescription *pgproto.RowDescription

	// ResultFormats is the per-column wire format Bind actually requested
	// (§4.4 step 1's "the statement-level Describe response always
	// reports text, regardless of Bind" caveat: RowDescription.Fields[i]
	// .Format cannot be trusted to decode a result, since it predates
	// Bind). A single element applies to every column, mirroring the
	// protocol's own "one result-format code means apply to all" rule.
	ResultFormats []int16

	// Server-side prepared statement bookkeeping (§3, §4.4 Prepare).
	PreparedStatementName string
	IsPrepared            bool
}

// InputParameters returns only the Input-direction parameters; the core
// never sees anything else, but this helper lets tests and the façade
// assert the invariant in one place.
func (s *Statement) InputParameters() []Parameter {
	out := make([]Parameter, 0, len(s.Parameters))
	for _, p := range s.Parameters {
		if p.Direction == Input {
			out = append(out, p)
		}
	}
	return out
}

// Validate enforces §3's Statement invariants: SQL is never empty, and
// InputParameters contains only Input-direction parameters.
func (s *Statement) Validate() error {
	if s.SQL == "" {
		return ErrEmptySQL
	}
	for _, p := range s.Parameters {
		if p.Direction != Input {
			return ErrOutputParameterNotSupported
		}
	}
	return nil
}

// Behavior flags mirrored from ADO.NET's CommandBehavior, restricted to
// the subset the core's pipeline needs to know about.
type Behavior int

const (
	BehaviorDefault Behavior = 0
	// SingleRow hints the connector to cap Execute's MaxRows at 1.
	BehaviorSingleRow Behavior = 1 << iota
	// SchemaOnly hints Describe-only execution (no Bind/Execute).
	BehaviorSchemaOnly
)

// Command is an ordered list of one or more Statements plus execution
// options. The core treats CommandText-derived and raw-Statement
// command variants identically once Statements is populated (§3).
type Command struct {
	Statements     []Statement
	CommandTimeout int // seconds; 0 = connector default (Config.CommandTimeout)
	Behavior       Behavior
}

// Validate runs Statement.Validate over every statement and requires at
// least one.
func (c *Command) Validate() error {
	if len(c.Statements) == 0 {
		return ErrNoStatements
	}
	for i := range c.Statements {
		if err := c.Statements[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone deep-copies a Command's Statements, per SPEC_FULL.md's
// resolution of the source's unimplemented Clone(): a clone must not
// share mutable execution-time results with the original.
func (c *Command) Clone() *Command {
	out := &Command{CommandTimeout: c.CommandTimeout, Behavior: c.Behavior}
	out.Statements = make([]Statement, len(c.Statements))
	for i, s := range c.Statements {
		clone := Statement{
			SQL:                   s.SQL,
			Type:                  Unknown,
			PreparedStatementName: "",
			IsPrepared:            false,
		}
		clone.Parameters = append([]Parameter(nil), s.Parameters...)
		out.Statements[i] = clone
	}
	return out
}
