package main

import (
	"encoding/json"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/map-review/internal/pipeline"
)

var (
	assessUPC      string
	assessMAPPrice float64
	assessFile     string
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Run a single MAP assessment from the command line",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		data, err := os.ReadFile(assessFile)
		if err != nil {
			return eris.Wrapf(err, "read policy file %s", assessFile)
		}

		sub := pipeline.Submission{
			UPC:      assessUPC,
			MAPPrice: assessMAPPrice,
			FileName: filepath.Base(assessFile),
			FileType: documentType(assessFile),
			Data:     data,
		}

		view, err := env.Pipeline.Run(ctx, sub)
		if err != nil {
			return eris.Wrap(err, "assessment run")
		}

		zap.L().Info("assessment complete",
			zap.String("assessment_id", view.Assessment.ID),
			zap.String("status", string(view.Assessment.Status)),
		)

		// Print result JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(assessmentResponse(view))
	},
}

// documentType maps the file extension to a policy document media type.
// The system mime table does not cover Word types on every platform.
func documentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return mime.TypeByExtension(filepath.Ext(path))
	}
}

func init() {
	assessCmd.Flags().StringVar(&assessUPC, "upc", "", "product UPC (required)")
	assessCmd.Flags().Float64Var(&assessMAPPrice, "map-price", 0, "MAP price in USD (required)")
	assessCmd.Flags().StringVar(&assessFile, "file", "", "policy document path, .pdf or .doc/.docx (required)")
	_ = assessCmd.MarkFlagRequired("upc")
	_ = assessCmd.MarkFlagRequired("map-price")
	_ = assessCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(assessCmd)
}
