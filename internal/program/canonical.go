package program

import "fmt"

// canonicalBuilder synthesizes a textbook derivation rule for a query
// predicate with a fixed arity, given the query's argument names.
type canonicalBuilder func(args []string) (condition string, ok bool)

var canonicalBuilders = map[string]canonicalBuilder{
	"ContrattoValido":            buildContrattoValido,
	"ResponsabilitaContrattuale": buildResponsabilitaContrattuale,
	"UsucapioneOrdinaria":        buildUsucapioneOrdinaria,
}

func buildContrattoValido(args []string) (string, bool) {
	if len(args) != 2 {
		return "", false
	}
	parte, contratto := args[0], args[1]
	return fmt.Sprintf(
		"(and Consenso(%s, %s) CapacitaContrattuale(%s) CausaLegittima(%s) OggettoDeterminato(%s) FormaPrescritta(%s))",
		parte, contratto, parte, contratto, contratto, contratto,
	), true
}

func buildResponsabilitaContrattuale(args []string) (string, bool) {
	if len(args) != 3 {
		return "", false
	}
	debitore, creditore, contratto := args[0], args[1], args[2]
	return fmt.Sprintf(
		"(and HaObbligo(%s, %s, %s) Inadempimento(%s, %s) DannoPatrimoniale(%s) Imputabilita(%s, %s))",
		debitore, creditore, contratto, debitore, contratto, creditore, debitore, contratto,
	), true
}

func buildUsucapioneOrdinaria(args []string) (string, bool) {
	if len(args) != 2 {
		return "", false
	}
	possessore, bene := args[0], args[1]
	return fmt.Sprintf(
		"(and PossessoContinuato(%s, %s) PossessoPubblico(%s, %s) BuonaFede(%s))",
		possessore, bene, possessore, bene, possessore,
	), true
}

// buildContrattoAdesione needs two fresh constants (a professionista and a
// consumatore anchor) that do not appear in the query's argument list, so it
// is handled separately in InjectCanonicalRules where it has access to the
// program to allocate them.
func buildContrattoAdesione(p *LogicProgram, args []string) (string, bool) {
	if len(args) != 1 {
		return "", false
	}
	contratto := args[0]
	professionista := ensureConstant(p, contratto+"_professionista", "Professionista")
	consumatore := ensureConstant(p, contratto+"_consumatore", "Consumatore")
	return fmt.Sprintf(
		"(and PredeterminatoDa(%s, %s) NonNegoziabileDa(%s, %s) PuoSoloAccettareOppureRifiutare(%s, %s))",
		contratto, professionista, contratto, consumatore, consumatore, contratto,
	), true
}

// buildUsucapioneAbbreviata needs a fresh Titolo constant, for the same
// reason as ContrattoAdesione above.
func buildUsucapioneAbbreviata(p *LogicProgram, args []string) (string, bool) {
	if len(args) != 2 {
		return "", false
	}
	possessore, bene := args[0], args[1]
	titolo := ensureConstant(p, "titolo_"+bene, "Titolo")
	return fmt.Sprintf(
		"(and PossessoContinuato(%s, %s) PossessoPubblico(%s, %s) BuonaFede(%s) TitoloIdoneo(%s, %s))",
		possessore, bene, possessore, bene, possessore, titolo, bene,
	), true
}

// InjectCanonicalRules guarantees that, if p.Query names one of the five
// predicates this system knows a textbook derivation for and no rule
// already concludes the query atom, a canonical rule is synthesized and
// appended — so the guardrail checker and solver always see a derivable
// target even when the LLM omitted the final rule.
func InjectCanonicalRules(p *LogicProgram) {
	if p.Query == nil || p.Query.Pred == "" {
		return
	}
	target := p.Query.Text()
	if p.HasRuleConcluding(target) {
		return
	}

	var condition string
	var ok bool
	switch p.Query.Pred {
	case "ContrattoAdesione":
		condition, ok = buildContrattoAdesione(p, p.Query.Args)
	case "UsucapioneAbbreviata":
		condition, ok = buildUsucapioneAbbreviata(p, p.Query.Args)
	default:
		if builder, found := canonicalBuilders[p.Query.Pred]; found {
			condition, ok = builder(p.Query.Args)
		}
	}
	if !ok {
		return
	}

	p.Rules = append(p.Rules, Rule{Condition: condition, Conclusion: target})
}

// ensureConstant returns an existing constant of the given sort if one is
// already declared, or declares a fresh one named baseName (de-duplicated
// with a numeric suffix), the way the original canonical-rule injector
// avoids spawning a new anchor constant every time it runs.
func ensureConstant(p *LogicProgram, baseName, sort string) string {
	for name, c := range p.Constants {
		if c.Sort == sort {
			return name
		}
	}
	candidate := baseName
	for i := 2; ; i++ {
		if _, taken := p.Constants[candidate]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s_%d", baseName, i)
	}
	p.Constants[candidate] = ConstantDef{Sort: sort}
	if _, declared := p.Sorts[sort]; !declared {
		p.Sorts[sort] = SortDef{Type: "Entity"}
	}
	return candidate
}
