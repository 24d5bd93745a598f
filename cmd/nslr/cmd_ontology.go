package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nslr/internal/ontology"
)

// ontologyCmd dumps the canonical sorts and predicates.
var ontologyCmd = &cobra.Command{
	Use:   "ontology",
	Short: "List the canonical sorts and predicates the pipeline reasons over",
	RunE:  runOntology,
}

func runOntology(cmd *cobra.Command, args []string) error {
	reg, err := ontology.Default()
	if err != nil {
		return fmt.Errorf("load ontology: %w", err)
	}

	fmt.Printf("DSL version: %s\n\n", ontology.DSLVersion)

	fmt.Println("Sorts:")
	for _, sort := range reg.Sorts() {
		fmt.Printf("  %s\n", sort.Name)
	}

	fmt.Println("\nPredicates:")
	for _, pred := range reg.Predicates() {
		fmt.Printf("  %s/%d\n", pred.Name, pred.Arity())
	}
	return nil
}
