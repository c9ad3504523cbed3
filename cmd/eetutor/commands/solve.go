package commands

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voltlab/eetutor-go/internal/logging"
	"github.com/voltlab/eetutor-go/internal/pipeline"
)

// NewSolveCmd constructs the `eetutor solve` command: one question, one
// pipeline run, the envelope printed as JSON.
func NewSolveCmd() *cobra.Command {
	var pdfPath string
	var imagePaths []string
	var outPath string
	var topK int

	cmd := &cobra.Command{
		Use:   "solve [question]",
		Short: "Answer one question against a textbook PDF",
		Long: `Run the solve pipeline once from the command line.

The question is given as arguments, the textbook as --pdf, and optional
figure uploads as repeated --image flags. The full solution envelope is
printed to stdout as JSON; --out additionally writes the rendered circuit
diagram to a PNG file.

Examples:
  eetutor solve --pdf chapter3.pdf "Find the Thevenin equivalent at terminals a-b"
  eetutor solve --pdf chapter3.pdf --image circuit.png --out diagram.png "Find V across R2"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			question := strings.Join(args, " ")

			document, err := os.ReadFile(pdfPath)
			if err != nil {
				return fmt.Errorf("solve: read pdf: %w", err)
			}

			var userImages [][]byte
			for _, p := range imagePaths {
				img, err := os.ReadFile(p)
				if err != nil {
					return fmt.Errorf("solve: read image %s: %w", p, err)
				}
				userImages = append(userImages, img)
			}

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("solve: %w", err)
			}

			env := st.pipeline.Solve(ctx, &pipeline.SolveRequest{
				Question:   question,
				Document:   document,
				UserImages: userImages,
				TopK:       topK,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(env); err != nil {
				return fmt.Errorf("solve: encode envelope: %w", err)
			}

			if outPath != "" && env.CircuitDiagram != nil && env.CircuitDiagram.Success {
				png, err := base64.StdEncoding.DecodeString(env.CircuitDiagram.ImageBase64)
				if err != nil {
					return fmt.Errorf("solve: decode diagram image: %w", err)
				}
				if err := os.WriteFile(outPath, png, 0o644); err != nil {
					return fmt.Errorf("solve: write diagram: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "diagram written to %s\n", outPath)
			}

			if !env.Success {
				return fmt.Errorf("solve: %s", env.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pdfPath, "pdf", "", "Path to the textbook PDF (required)")
	cmd.Flags().StringArrayVar(&imagePaths, "image", nil, "Path to a figure image (repeatable)")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the rendered circuit diagram PNG to this path")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of textbook pages to retrieve (0 uses the engine default)")
	_ = cmd.MarkFlagRequired("pdf")

	return cmd
}
