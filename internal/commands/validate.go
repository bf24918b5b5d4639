package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/internal/validation"
	"evalgo.org/dockyard/models"
)

var (
	validateLocal bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [type] [file]",
	Short: "Validate a host or container definition",
	Long: `Validate a host or container definition written in YAML or JSON.

Examples:
  dockyard validate host web-01.yaml
  dockyard validate container nginx.json --local=false`,
	Args: cobra.ExactArgs(2),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateLocal, "local", true, "validate locally instead of through the API server")
}

// hostFile and containerFile mirror the API request bodies.
type hostFile struct {
	Name     string `yaml:"name" json:"name"`
	Hostname string `yaml:"hostname" json:"hostname"`
	Port     int    `yaml:"port" json:"port,omitempty"`
}

type containerFile struct {
	Image    string   `yaml:"image" json:"image"`
	Command  string   `yaml:"command" json:"command,omitempty"`
	Ports    []string `yaml:"ports" json:"ports,omitempty"`
	Env      []string `yaml:"env" json:"env,omitempty"`
	MemoryMB int64    `yaml:"memory_mb" json:"memory_mb,omitempty"`
	Volumes  []string `yaml:"volumes" json:"volumes,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	entityType := args[0]
	filename := args[1]

	// Read file
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	// YAML is a superset of JSON, so one decoder serves both
	var doc any
	switch entityType {
	case "host":
		h := &hostFile{}
		doc = h
		err = yaml.Unmarshal(data, h)
		if h.Port == 0 {
			h.Port = cfg.Engine.DefaultPort
		}
	case "container":
		c := &containerFile{}
		doc = c
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unknown entity type: %s (use 'container' or 'host')", entityType)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	var result *validation.ValidationResult
	if validateLocal {
		result = validateDocument(doc)
	} else if result, err = validateRemote(entityType, doc); err != nil {
		return err
	}

	return printValidation(cmd, result)
}

func validateDocument(doc any) *validation.ValidationResult {
	v := validation.New()

	switch d := doc.(type) {
	case *hostFile:
		return v.ValidateHost(&models.Host{Name: d.Name, Hostname: d.Hostname, Port: d.Port})
	case *containerFile:
		return v.ValidateCreateOptions(engine.CreateOptions{
			Image:       d.Image,
			Command:     d.Command,
			Ports:       d.Ports,
			Env:         d.Env,
			MemoryBytes: d.MemoryMB * 1048576,
			Volumes:     d.Volumes,
		})
	}
	return &validation.ValidationResult{Valid: true}
}

// validateRemote posts the document to a running server's validate route.
func validateRemote(entityType string, doc any) (*validation.ValidationResult, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("http://%s:%d/api/v1/validate/%s", cfg.Server.Host, cfg.Server.Port, entityType)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result validation.ValidationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

func printValidation(cmd *cobra.Command, result *validation.ValidationResult) error {
	out := cmd.OutOrStdout()

	if result.Valid {
		fmt.Fprintln(out, "✓ Document is valid")
		return nil
	}

	fmt.Fprintln(out, "✗ Validation failed:")
	for _, e := range result.Errors {
		if e.Value != nil {
			fmt.Fprintf(out, "  - %s: %s (value: %v)\n", e.Field, e.Message, e.Value)
		} else {
			fmt.Fprintf(out, "  - %s: %s\n", e.Field, e.Message)
		}
	}

	return fmt.Errorf("validation failed")
}
