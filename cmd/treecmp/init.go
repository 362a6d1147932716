package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ning0612/Treecmp/internal/config"
)

const configHeader = `# treecmp configuration
#
# compare.mode selects the digests used when compare.algorithms is empty:
#   quick  size and mtime, confirmed by a byte comparison (verify_content),
#          snapshots capture crc32
#   hash   sha256 for both comparisons and snapshots
# Every key can be overridden with TREECMP_<SECTION>_<KEY>, e.g. TREECMP_COMPARE_MODE=hash

`

func (a *app) initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := writeDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// writeDefaultConfig renders config.Default as YAML
func writeDefaultConfig(path string) error {
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append([]byte(configHeader), data...), 0644)
}
