package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/anchorbadge/anchorbadge-core/pkg/anchor"
	"github.com/anchorbadge/anchorbadge-core/pkg/scoring"
)

var scoreJSON bool

var scoreCmd = &cobra.Command{
	Use:   "score [anchors-file]",
	Short: "Compute a trust score from identity anchors",
	Long: `Compute the trust score and clearance tier for a JSON array of identity
anchors, read from a file or from stdin when the file is "-".`,
	Example: `  echo '[{"provider":"gmail","is_edu_verified":true}]' | anchorbadge score -`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		anchors, err := readAnchors(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		res := scoring.MustDefaultEngine().Score(anchors)
		return printScore(cmd.OutOrStdout(), res, scoreJSON)
	},
}

func readAnchors(stdin io.Reader, path string) ([]anchor.IdentityAnchor, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read anchors: %w", err)
	}

	var anchors []anchor.IdentityAnchor
	if err := json.Unmarshal(data, &anchors); err != nil {
		return nil, fmt.Errorf("failed to parse anchors: %w", err)
	}
	for i, a := range anchors {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("anchor %d: %w", i, err)
		}
	}
	return anchors, nil
}

func printScore(out io.Writer, res scoring.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "Trust Score: %d/%d\n", res.Score, scoring.MaxScore)
	fmt.Fprintf(out, "Clearance:   %s\n", res.Clearance.Label)
	for _, c := range res.Breakdown {
		fmt.Fprintf(out, "  %-20s +%d\n", c.Factor, c.Points)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "Print the result as JSON")
}
