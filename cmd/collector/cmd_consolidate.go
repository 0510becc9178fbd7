package main

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"malmohomes/collector/internal/database"
	"malmohomes/collector/internal/output"
)

var consolidateFlags struct {
	outputDir string
	db        string
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Load every group file of an output directory into the database",
	Long: `Reads the group Parquet files recorded in the run metadata of the output
directory and upserts them into the SQLite database, one row per listing. Later
groups overwrite earlier observations of the same listing. Files the metadata
does not list are ignored.`,
	RunE: runConsolidate,
}

func init() {
	f := consolidateCmd.Flags()
	f.StringVar(&consolidateFlags.outputDir, "output-dir", "", "Batch output directory (default OUTPUT_DIR)")
	f.StringVar(&consolidateFlags.db, "db", "", "SQLite database (default <output-dir>/properties.db)")
}

func runConsolidate(cmd *cobra.Command, _ []string) error {
	outputDir := app.cfg.Paths.OutputDir
	if consolidateFlags.outputDir != "" {
		outputDir = consolidateFlags.outputDir
	}

	files, err := recordedGroupFiles(outputDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("run in %s has no committed group files", outputDir)
	}

	db, err := database.NewDatabase(databasePath(consolidateFlags.db, outputDir), app.logger)
	if err != nil {
		return err
	}
	defer db.Close()

	total := 0
	for _, file := range files {
		properties, err := output.ReadGroup(file)
		if err != nil {
			return err
		}
		if err := db.UpsertProperties(cmd.Context(), properties); err != nil {
			return err
		}
		total += len(properties)
		app.logger.WithFields(logrus.Fields{
			"file":    filepath.Base(file),
			"records": len(properties),
		}).Info("Consolidated group")
	}

	count, err := db.CountProperties(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Read %d records from %d files; database holds %d listings\n", total, len(files), count)
	return nil
}

// recordedGroupFiles lists the group files of the run in outputDir, in group
// order, as recorded in its metadata.
func recordedGroupFiles(outputDir string) ([]string, error) {
	meta, err := output.LoadMetadata(filepath.Join(outputDir, output.MetadataFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read run metadata in %s: %w", outputDir, err)
	}

	var files []string
	for _, g := range meta.Groups {
		if g.File == "" {
			continue
		}
		files = append(files, filepath.Join(outputDir, g.File))
	}
	return files, nil
}
