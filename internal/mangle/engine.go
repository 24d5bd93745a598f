// Package mangle provides a thin wrapper around Google Mangle for building a
// fresh Datalog instance from a schema + fact set and running fixpoint
// queries against it.
package mangle

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	_ "github.com/google/mangle/packages"
	"github.com/google/mangle/parse"
	"github.com/google/mangle/unionfind"
)

// Config controls per-instance evaluation limits. Every NSLR request builds
// its own Engine; instances are never shared or reused across requests.
type Config struct {
	FactLimit    int
	QueryTimeout time.Duration
}

// DefaultConfig returns sane defaults for a single request's solver instance.
func DefaultConfig() Config {
	return Config{
		FactLimit:    100000,
		QueryTimeout: 30 * time.Second,
	}
}

// Engine wraps one Mangle fact store plus the analyzed program (decls +
// rules) built from it. It is not safe to reuse across unrelated logic
// programs; build a new Engine per program.
type Engine struct {
	config Config

	mu             sync.RWMutex
	store          factstore.ConcurrentFactStore
	programInfo    *analysis.ProgramInfo
	queryContext   *mengine.QueryContext
	predicateIndex map[string]ast.PredicateSym
	factCount      int
}

// Fact is a single ground fact to assert into the engine.
type Fact struct {
	Predicate string
	Args      []interface{}
}

// NewEngine allocates an empty engine. Call LoadSchemaString before adding
// facts or querying.
func NewEngine(cfg Config) *Engine {
	base := factstore.NewSimpleInMemoryStore()
	return &Engine{
		config:         cfg,
		store:          factstore.NewConcurrentFactStore(base),
		predicateIndex: make(map[string]ast.PredicateSym),
	}
}

// LoadSchemaString parses and analyzes a Mangle source unit (decls + rules)
// and builds the query context used for fact insertion and evaluation.
func (e *Engine) LoadSchemaString(schema string) error {
	unit, err := parse.Unit(bytes.NewReader([]byte(schema)))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	programInfo, err := analysis.AnalyzeOneUnit(parse.SourceUnit{
		Clauses: unit.Clauses,
		Decls:   unit.Decls,
	}, nil)
	if err != nil {
		return fmt.Errorf("analyze schema: %w", err)
	}

	e.programInfo = programInfo
	e.predicateIndex = make(map[string]ast.PredicateSym, len(programInfo.Decls))

	predToDecl := make(map[ast.PredicateSym]*ast.Decl, len(programInfo.Decls))
	for sym, decl := range programInfo.Decls {
		e.predicateIndex[sym.Symbol] = sym
		predToDecl[sym] = decl
	}

	predToRules := make(map[ast.PredicateSym][]ast.Clause)
	for _, clause := range programInfo.Rules {
		predToRules[clause.Head.Predicate] = append(predToRules[clause.Head.Predicate], clause)
	}

	e.queryContext = &mengine.QueryContext{
		PredToRules: predToRules,
		PredToDecl:  predToDecl,
		Store:       e.store,
	}
	return nil
}

// AddFacts inserts ground facts and evaluates the program to fixpoint.
func (e *Engine) AddFacts(facts []Fact) error {
	if len(facts) == 0 {
		return nil
	}

	e.mu.Lock()
	if e.programInfo == nil {
		e.mu.Unlock()
		return fmt.Errorf("no schema loaded; call LoadSchemaString first")
	}
	for _, fact := range facts {
		if err := e.insertFactLocked(fact); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	programInfo := e.programInfo
	store := e.store
	e.mu.Unlock()

	_, err := mengine.EvalProgramWithStats(programInfo, store)
	return err
}

func (e *Engine) insertFactLocked(fact Fact) error {
	if e.config.FactLimit > 0 && e.factCount >= e.config.FactLimit {
		return fmt.Errorf("fact limit exceeded: %d", e.config.FactLimit)
	}
	atom, err := e.factToAtomLocked(fact)
	if err != nil {
		return err
	}
	if e.store.Add(atom) {
		e.factCount++
	}
	return nil
}

func (e *Engine) factToAtomLocked(fact Fact) (ast.Atom, error) {
	sym, ok := e.predicateIndex[fact.Predicate]
	if !ok {
		return ast.Atom{}, fmt.Errorf("predicate %s is not declared in schema", fact.Predicate)
	}
	if len(fact.Args) != sym.Arity {
		return ast.Atom{}, fmt.Errorf("predicate %s expects %d args, got %d", fact.Predicate, sym.Arity, len(fact.Args))
	}

	var decl *ast.Decl
	if e.queryContext != nil {
		decl = e.queryContext.PredToDecl[sym]
	}

	args := make([]ast.BaseTerm, len(fact.Args))
	for i, raw := range fact.Args {
		expectedType := ast.ConstantType(-1)
		if decl != nil && len(decl.Bounds) > 0 {
			bounds := decl.Bounds[0].Bounds
			if len(bounds) > i {
				if c, ok := bounds[i].(ast.Constant); ok {
					switch c.Symbol {
					case "/name":
						expectedType = ast.NameType
					case "/string":
						expectedType = ast.StringType
					case "/number":
						expectedType = ast.NumberType
					}
				}
			}
		}
		term, err := convertValueToTypedTerm(raw, expectedType)
		if err != nil {
			return ast.Atom{}, fmt.Errorf("predicate %s arg %d: %w", fact.Predicate, i, err)
		}
		args[i] = term
	}
	return ast.Atom{Predicate: sym, Args: args}, nil
}

func convertValueToTypedTerm(value interface{}, expectedType ast.ConstantType) (ast.BaseTerm, error) {
	switch expectedType {
	case ast.NameType:
		if s, ok := value.(string); ok {
			if !strings.HasPrefix(s, "/") {
				return ast.Name("/" + s)
			}
			return ast.Name(s)
		}
	case ast.StringType:
		if s, ok := value.(string); ok {
			return ast.String(s), nil
		}
	}

	switch v := value.(type) {
	case ast.BaseTerm:
		return v, nil
	case string:
		if strings.HasPrefix(v, "/") {
			return ast.Name(v)
		}
		if expectedType != ast.StringType && isIdentifier(v) {
			if name, err := ast.Name("/" + v); err == nil {
				return name, nil
			}
		}
		return ast.String(v), nil
	case int:
		return ast.Number(int64(v)), nil
	case int64:
		return ast.Number(v), nil
	case float64:
		return ast.Float64(v), nil
	case bool:
		if v {
			return ast.TrueConstant, nil
		}
		return ast.FalseConstant, nil
	default:
		return nil, fmt.Errorf("unsupported fact argument type %T", v)
	}
	return nil, fmt.Errorf("unsupported fact argument value %v for expected type %v", value, expectedType)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if !((c >= 'a' && c <= 'z') || c == '_') {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

// queryVariable records a variable argument of a parsed query atom and its
// position, as collected by parseQueryShape for Holds.
type queryVariable struct {
	Name  string
	Index int
}

type queryShape struct {
	atom      ast.Atom
	variables []queryVariable
}

func parseQueryShape(query string) (*queryShape, error) {
	clean := strings.TrimSpace(query)
	if clean == "" {
		return nil, fmt.Errorf("empty query")
	}
	if strings.HasPrefix(clean, "?") {
		clean = strings.TrimSpace(clean[1:])
	}
	clean = strings.TrimSuffix(clean, ".")

	atom, err := parse.Atom(clean)
	if err != nil {
		atom, err = parse.Atom(clean + ".")
		if err != nil {
			return nil, fmt.Errorf("parse query %q: %w", query, err)
		}
	}

	var vars []queryVariable
	for idx, arg := range atom.Args {
		if v, ok := arg.(ast.Variable); ok {
			vars = append(vars, queryVariable{Name: v.Symbol, Index: idx})
		}
	}
	return &queryShape{atom: atom, variables: vars}, nil
}

// Holds evaluates whether the ground atom described by query is derivable
// to fixpoint from the current facts and rules (closed-world entailment).
func (e *Engine) Holds(ctx context.Context, query string) (bool, error) {
	shape, err := parseQueryShape(query)
	if err != nil {
		return false, err
	}

	e.mu.RLock()
	qc := e.queryContext
	if qc == nil {
		e.mu.RUnlock()
		return false, fmt.Errorf("no schema loaded; cannot query")
	}
	decl, ok := qc.PredToDecl[shape.atom.Predicate]
	if !ok {
		e.mu.RUnlock()
		return false, fmt.Errorf("predicate %s is not declared", shape.atom.Predicate.Symbol)
	}
	if len(decl.Modes()) == 0 {
		e.mu.RUnlock()
		return false, fmt.Errorf("predicate %s has no modes declared", shape.atom.Predicate.Symbol)
	}
	mode := decl.Modes()[0]
	e.mu.RUnlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && e.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.QueryTimeout)
		defer cancel()
	}

	found := make(chan bool, 1)
	errc := make(chan error, 1)
	go func() {
		matched := false
		err := qc.EvalQuery(shape.atom, mode, unionfind.New(), func(ast.Atom) error {
			matched = true
			return nil
		})
		if err != nil {
			errc <- err
			return
		}
		found <- matched
	}()

	select {
	case ok := <-found:
		return ok, nil
	case err := <-errc:
		return false, err
	case <-ctx.Done():
		return false, fmt.Errorf("query timed out: %w", ctx.Err())
	}
}

// GetFacts returns every fact currently derivable for a predicate.
func (e *Engine) GetFacts(predicate string) ([]Fact, error) {
	e.mu.RLock()
	sym, ok := e.predicateIndex[predicate]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("predicate %s is not declared", predicate)
	}

	var results []Fact
	err := e.store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
		args := make([]interface{}, len(atom.Args))
		for i, arg := range atom.Args {
			args[i] = convertBaseTermToInterface(arg)
		}
		results = append(results, Fact{Predicate: predicate, Args: args})
		return nil
	})
	return results, err
}

// HasPredicate reports whether predicate was declared in the loaded schema.
func (e *Engine) HasPredicate(predicate string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.predicateIndex[predicate]
	return ok
}

func convertBaseTermToInterface(term ast.BaseTerm) interface{} {
	switch v := term.(type) {
	case ast.Constant:
		return constantToInterface(v)
	case ast.Variable:
		return v.Symbol
	default:
		return fmt.Sprintf("%v", term)
	}
}

func constantToInterface(constant ast.Constant) interface{} {
	switch constant.Type {
	case ast.StringType, ast.NameType, ast.BytesType:
		return constant.Symbol
	case ast.NumberType:
		return constant.NumValue
	case ast.Float64Type:
		return math.Float64frombits(uint64(constant.NumValue))
	default:
		return constant.String()
	}
}
