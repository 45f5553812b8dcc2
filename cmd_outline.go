package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"outline_assistant/applier"
	"outline_assistant/auth"
	"outline_assistant/config"
	"outline_assistant/docsapi"
	"outline_assistant/metrics"
	"outline_assistant/outline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Show writing metrics for a text file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalyze,
}

var outlineCmd = &cobra.Command{
	Use:   "outline [file]",
	Short: "Generate an outline for a text file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOutline,
}

var applyCmd = &cobra.Command{
	Use:   "apply <document-url-or-id> [file]",
	Short: "Generate an outline and insert it into a document",
	Long:  "Generate an outline from the file (or the document's own text when no file is given) and insert it through the Docs API.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runApply,
}

func init() {
	analyzeCmd.Flags().StringP("output", "o", "", "Output format (json)")
	outlineCmd.Flags().StringP("format", "f", "markdown", "Output format (markdown|text|json|html)")
	applyCmd.Flags().Int64("index", docsapi.DocumentStartIndex, "insertion index in the document body")
	applyCmd.Flags().Bool("dry-run", false, "print the text that would be inserted")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	snap := metrics.Compute(text)

	if output, _ := cmd.Flags().GetString("output"); output == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	data := pterm.TableData{
		{"Metric", "Value"},
		{"Words", strconv.Itoa(snap.WordCount)},
		{"Sentences", strconv.Itoa(snap.SentenceCount)},
		{"Paragraphs", strconv.Itoa(snap.ParagraphCount)},
		{"Reading time", fmt.Sprintf("%d min", snap.ReadingTimeMinutes)},
		{"Grade level", strconv.Itoa(metrics.DisplayGrade(snap.GradeLevel))},
		{"Writing style", string(snap.WritingStyle)},
		{"Vocabulary", snap.VocabularyLevel},
		{"Sentence structure", snap.SentenceStructure},
		{"Clarity", fmt.Sprintf("%d%%", snap.ClarityScore)},
		{"Engagement", fmt.Sprintf("%d%%", snap.EngagementScore)},
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	for _, r := range snap.Recommendations {
		pterm.Info.Println(r)
	}
	return nil
}

func runOutline(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	gen, err := buildGenerator(cfg)
	if err != nil {
		return err
	}

	spinner, _ := pterm.DefaultSpinner.Start("Generating outline...")
	o, err := gen.Generate(cmd.Context(), text, nil)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("Outline with %d sections", len(o.Sections)))

	format, _ := cmd.Flags().GetString("format")
	return printOutline(cmd, o, format)
}

func printOutline(cmd *cobra.Command, o outline.Outline, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "", "markdown":
		_, err := fmt.Fprint(out, o.Markdown())
		return err
	case "text":
		_, err := fmt.Fprint(out, o.Text())
		return err
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(o)
	case "html":
		html, err := o.HTML()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, html)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	docID, err := docsapi.DocumentID(args[0])
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	tokens, _, err := buildTokenManager(cfg)
	if err != nil {
		return err
	}
	client := &docsapi.Client{Endpoint: cfg.Google.DocsEndpoint}

	var text string
	if len(args) == 2 {
		if text, err = readInput(cmd, args[1:]); err != nil {
			return err
		}
	} else {
		if _, err := tokens.Token(ctx, true); err != nil {
			return err
		}
		err = auth.WithRefresh(ctx, tokens, func(ctx context.Context, token string) error {
			var rerr error
			text, rerr = client.ReadText(ctx, token, docID)
			return rerr
		})
		if err != nil {
			pterm.Error.Println(applier.FriendlyMessage(err))
			return err
		}
	}

	gen, err := buildGenerator(cfg)
	if err != nil {
		return err
	}
	spinner, _ := pterm.DefaultSpinner.Start("Generating outline...")
	o, err := gen.Generate(ctx, text, nil)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("Outline with %d sections", len(o.Sections)))

	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		return printOutline(cmd, o, "text")
	}

	if _, err := tokens.Token(ctx, true); err != nil {
		pterm.Error.Println(applier.FriendlyMessage(err))
		return err
	}
	a, err := applier.New(&applier.DocsStrategy{Client: client, Tokens: tokens}, log.Default(), verbose)
	if err != nil {
		return err
	}
	index, _ := cmd.Flags().GetInt64("index")
	res, err := a.Apply(ctx, o, applier.Target{DocumentID: docID, Index: index})
	if err != nil {
		var ie *applier.InsertionError
		if errors.As(err, &ie) {
			pterm.Error.Println(ie.Message)
		}
		return err
	}
	pterm.Success.Printfln("Outline inserted via %s", res.Strategy)
	return nil
}
