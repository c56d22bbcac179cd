package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/parsegraph/pkg/document"
	"github.com/Sumatoshi-tech/parsegraph/pkg/syntax"
)

func treeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree [file]",
		Short: "Dump the syntax tree of a JSON source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTree(args[0], cmd.OutOrStdout())
		},
	}

	return cmd
}

func runTree(path string, out io.Writer) error {
	doc, err := openJSONDocument(path)
	if err != nil {
		return err
	}

	printNode(out, doc, doc.Syntax().Root(), 0)

	for _, e := range doc.Errors() {
		line, col := doc.LineIndex().LineCol(e.Site)
		fmt.Fprintf(out, "error %d:%d: %s\n", line, col, e.Message)
	}

	return nil
}

func printNode(out io.Writer, doc *document.Document, ref syntax.NodeRef, depth int) {
	node := doc.Syntax().Get(ref)
	if node == nil {
		return
	}

	indent := strings.Repeat("  ", depth)

	if node.IsToken {
		ch, _ := doc.Tree().Chunk(doc.Tree().Resolve(node.Token))
		fmt.Fprintf(out, "%srule=%-3d site=%-4d %q\n", indent, node.Rule, node.Site, ch.Lexeme)

		return
	}

	fmt.Fprintf(out, "%srule=%-3d site=%-4d span=%d\n", indent, node.Rule, node.Site, node.Span)

	for _, child := range node.Children {
		printNode(out, doc, child, depth+1)
	}
}
