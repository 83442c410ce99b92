package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ogura/figex/internal/config"
	"github.com/ogura/figex/internal/tui"
)

var (
	flagToken      string
	flagURLsFile   string
	flagOutputFile string
	flagAssetsDir  string
	flagConfig     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "figex",
		Short: "Export images from Figma design files",
		Long:  "An interactive terminal tool that resolves Figma file URLs to rendered images and downloads them in bulk via the Figma API",
		RunE:  run,
	}

	rootCmd.Flags().StringVarP(&flagToken, "token", "t", "", "Figma personal access token (overrides "+config.TokenEnvVar+" and the config file)")
	rootCmd.Flags().StringVar(&flagURLsFile, "urls-file", "", "JSON catalogue of named Figma URLs")
	rootCmd.Flags().StringVar(&flagOutputFile, "output-file", "", "where the resolved-image report is written")
	rootCmd.Flags().StringVar(&flagAssetsDir, "assets-dir", "", "directory downloaded images land in")
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to the settings file (default "+config.DefaultFile+")")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// .env is optional, flags and the environment win over it anyway
	_ = godotenv.Load()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	// flags beat env, env beats the settings file
	if flagToken != "" {
		cfg.FigmaToken = flagToken
	}
	if flagURLsFile != "" {
		cfg.URLsFile = flagURLsFile
	}
	if flagOutputFile != "" {
		cfg.OutputFile = flagOutputFile
	}
	if flagAssetsDir != "" {
		cfg.AssetsDir = flagAssetsDir
	}

	if cfg.FigmaToken == "" {
		yellow := color.New(color.FgYellow)
		yellow.Fprintf(os.Stderr, "warning: no Figma token set; fetch will fail until one is provided via --token, %s, or Settings\n", config.TokenEnvVar)
	}

	if err := os.MkdirAll(cfg.AssetsDir, 0o755); err != nil {
		return fmt.Errorf("create assets dir %s: %w", cfg.AssetsDir, err)
	}

	p := tea.NewProgram(tui.New(cfg, flagConfig), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
