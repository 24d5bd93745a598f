package stage

import (
	"encoding/json"
	"fmt"
	"strings"

	"nslr/internal/dsl"
	"nslr/internal/program"
)

// wireLogicProgram is the JSON shape a logic program takes over the wire to
// and from the model: predicates/sorts/constants as maps, rules as
// condition/conclusion pairs, and the query as a single atom string rather
// than the split Pred/Args form the program package works with internally.
type wireLogicProgram struct {
	DSLVersion string                     `json:"dsl_version"`
	Sorts      map[string]wireSort        `json:"sorts"`
	Constants  map[string]wireConstant    `json:"constants"`
	Predicates map[string]wirePredicate   `json:"predicates"`
	Facts      map[string]json.RawMessage `json:"facts"`
	Axioms     []json.RawMessage          `json:"axioms"`
	Rules      []wireRule                 `json:"rules"`
	Query      string                     `json:"query"`
}

type wireSort struct {
	Type string `json:"type"`
}

type wireConstant struct {
	Sort string `json:"sort"`
}

type wirePredicate struct {
	Arity int      `json:"arity"`
	Sorts []string `json:"sorts"`
}

type wireRule struct {
	Condition  string `json:"condition"`
	Conclusion string `json:"conclusion"`
}

// decodeLogicProgram converts a raw wire logic program into the internal
// representation. Axioms may arrive either as bare strings or as
// {"formula": "..."} / {"condition": "...", "conclusion": "..."} objects;
// facts may arrive either as a flat list of constant names or as full
// tuples — both forms the original extractor's normalization step
// tolerated.
func decodeLogicProgram(w wireLogicProgram) (*program.LogicProgram, error) {
	p := program.New()
	if w.DSLVersion != "" {
		p.DSLVersion = w.DSLVersion
	}
	for name, s := range w.Sorts {
		p.Sorts[name] = program.SortDef{Type: s.Type}
	}
	for name, c := range w.Constants {
		p.Constants[name] = program.ConstantDef{Sort: c.Sort}
	}
	for name, pred := range w.Predicates {
		p.Predicates[name] = program.PredicateDef{Args: pred.Sorts}
	}
	for name, raw := range w.Facts {
		tuples, err := decodeFactRows(raw)
		if err != nil {
			return nil, fmt.Errorf("decode facts for %s: %w", name, err)
		}
		p.Facts[name] = tuples
	}
	for _, raw := range w.Axioms {
		formula, err := decodeAxiomEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("decode axiom: %w", err)
		}
		if formula != "" {
			p.Axioms = append(p.Axioms, formula)
		}
	}
	for _, r := range w.Rules {
		p.Rules = append(p.Rules, program.Rule{Condition: r.Condition, Conclusion: r.Conclusion})
	}
	if strings.TrimSpace(w.Query) != "" {
		q, err := decodeQueryText(w.Query)
		if err != nil {
			return nil, fmt.Errorf("decode query: %w", err)
		}
		p.Query = q
	}
	return p, nil
}

func decodeFactRows(raw json.RawMessage) ([][]string, error) {
	var rows [][]string
	if err := json.Unmarshal(raw, &rows); err == nil {
		return rows, nil
	}
	var flat []string
	if err := json.Unmarshal(raw, &flat); err == nil {
		rows = make([][]string, len(flat))
		for i, item := range flat {
			rows[i] = []string{item}
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unsupported fact row shape: %s", string(raw))
}

func decodeAxiomEntry(raw json.RawMessage) (string, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var asObject struct {
		Formula    string `json:"formula"`
		Condition  string `json:"condition"`
		Conclusion string `json:"conclusion"`
	}
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return "", err
	}
	if asObject.Formula != "" {
		return asObject.Formula, nil
	}
	if asObject.Conclusion == "" {
		return "", nil
	}
	cond := strings.TrimSpace(asObject.Condition)
	if cond == "" || strings.EqualFold(cond, "true") || strings.EqualFold(cond, "vero") {
		return asObject.Conclusion, nil
	}
	return cond + " -> " + asObject.Conclusion, nil
}

// decodeQueryText parses a bare atom string ("Pred(a, b)" or "Pred") into a
// program.Query.
func decodeQueryText(text string) (*program.Query, error) {
	expr, err := dsl.Parse(text)
	if err != nil {
		return nil, err
	}
	atom, ok := expr.(dsl.Atom)
	if !ok {
		return nil, fmt.Errorf("query is not a bare predicate atom: %q", text)
	}
	return &program.Query{Pred: atom.Pred, Args: atom.Args}, nil
}

// encodeLogicProgram renders the internal representation back to the wire
// shape, used to embed "the current program" into a refinement prompt.
func encodeLogicProgram(p *program.LogicProgram) wireLogicProgram {
	w := wireLogicProgram{
		DSLVersion: p.DSLVersion,
		Sorts:      map[string]wireSort{},
		Constants:  map[string]wireConstant{},
		Predicates: map[string]wirePredicate{},
		Facts:      map[string]json.RawMessage{},
		Rules:      make([]wireRule, 0, len(p.Rules)),
	}
	for name, tuples := range p.Facts {
		raw, _ := json.Marshal(tuples)
		w.Facts[name] = raw
	}
	for name, s := range p.Sorts {
		w.Sorts[name] = wireSort{Type: s.Type}
	}
	for name, c := range p.Constants {
		w.Constants[name] = wireConstant{Sort: c.Sort}
	}
	for name, pred := range p.Predicates {
		w.Predicates[name] = wirePredicate{Arity: len(pred.Args), Sorts: pred.Args}
	}
	for _, axiom := range p.Axioms {
		raw, _ := json.Marshal(axiom)
		w.Axioms = append(w.Axioms, raw)
	}
	for _, r := range p.Rules {
		w.Rules = append(w.Rules, wireRule{Condition: r.Condition, Conclusion: r.Conclusion})
	}
	if p.Query != nil {
		w.Query = p.Query.Text()
	}
	return w
}
