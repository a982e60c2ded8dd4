package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triplecore/triplecore/pkg/rdf"
	"github.com/triplecore/triplecore/pkg/store"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Insert a handful of sample statements and query them back",
	RunE:  runDemo,
}

func runDemo(cmd *cobra.Command, _ []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	explicit, err := s.Explicit()
	if err != nil {
		return err
	}

	sink, err := explicit.Sink(store.Serializable)
	if err != nil {
		return err
	}

	ns := "https://example.org/"
	alice := rdf.NewIRI(ns, "alice")
	bob := rdf.NewIRI(ns, "bob")
	knows := rdf.NewIRI(ns, "knows")
	name := rdf.NewIRI(ns, "name")
	aliceName := rdf.Literal{Lexical: "Alice"}

	if err := sink.Add(alice, knows, bob, nil); err != nil {
		return err
	}
	if err := sink.Add(alice, name, aliceName, nil); err != nil {
		return err
	}
	if err := sink.Prepare(); err != nil {
		return err
	}
	if err := sink.Flush(); err != nil {
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}

	fmt.Println("inserted 2 statements")

	ds, err := explicit.Dataset(store.SnapshotRead)
	if err != nil {
		return err
	}
	defer ds.Close()

	results, err := ds.Scan(store.Pattern{Subject: alice})
	if err != nil {
		return err
	}
	for _, q := range results {
		fmt.Printf("%s %s %s\n", q.Subject, q.Predicate, q.Object)
	}
	return nil
}
