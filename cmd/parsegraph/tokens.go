package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/parsegraph/pkg/document"
	"github.com/Sumatoshi-tech/parsegraph/pkg/grammar/jsongrammar"
	"github.com/Sumatoshi-tech/parsegraph/pkg/ident"
)

func tokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens [file]",
		Short: "Dump the chunk (token) stream of a JSON source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokens(args[0], cmd.OutOrStdout())
		},
	}

	return cmd
}

func runTokens(path string, out io.Writer) error {
	doc, err := openJSONDocument(path)
	if err != nil {
		return err
	}

	tree := doc.Tree()

	site := 0
	for c := tree.Start(); !c.IsDangling() && !c.IsEnd(); c = tree.Next(c) {
		ch, ok := tree.Chunk(c)
		if !ok {
			break
		}

		fmt.Fprintf(out, "%6d..%-6d kind=%-2d %q\n", site, site+ch.Span, ch.Token, ch.Lexeme)
		site += ch.Span
	}

	for _, e := range doc.Errors() {
		line, col := doc.LineIndex().LineCol(e.Site)
		fmt.Fprintf(out, "error %d:%d: %s\n", line, col, e.Message)
	}

	return nil
}

func openJSONDocument(path string) (*document.Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	doc, err := document.Open(ident.New(), src, jsongrammar.Scanner{}, jsongrammar.Grammar, jsongrammar.Classifier, jsongrammar.Classify, nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return doc, nil
}
