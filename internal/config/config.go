// File: internal/config/config.go
// Brief: Deployfile loading, defaults, and one-time validation.

// Package config defines the typed deployfile consumed by the deployment
// pipeline. A deployfile is a YAML document describing what to package, where
// to upload it, and which CloudFormation stacks to create. All required-field
// and cross-reference checks happen once in Validate, never per access.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Option defaults. Every pipeline toggle defaults to on except static
// artifact upload, which is an opt-in post-deploy step.
const (
	DefaultRunUnitTests          = true
	DefaultMakePackages          = true
	DefaultUploadPackages        = true
	DefaultCreateStacks          = true
	DefaultCollectStackOutputs   = true
	DefaultUploadStaticArtifacts = false
)

// File is the root of a parsed deployfile. It is immutable for the duration
// of a run.
type File struct {
	Options         Options              `yaml:"options"`
	SourcePath      string               `yaml:"sourcePath"`
	LibPath         string               `yaml:"libPath"`
	AWS             AWSSettings          `yaml:"aws"`
	Packages        []PackageSpec        `yaml:"packages"`
	Stacks          []StackSpec          `yaml:"stacks"`
	StaticArtifacts []StaticArtifactSpec `yaml:"staticArtifacts"`
}

// Options holds the per-step feature toggles. Fields are pointers so an
// absent key is distinguishable from an explicit false; the *Enabled
// accessors apply the documented defaults.
type Options struct {
	RunUnitTests          *bool `yaml:"runUnitTests"`
	MakePackages          *bool `yaml:"makePackages"`
	UploadPackages        *bool `yaml:"uploadPackages"`
	CreateStacks          *bool `yaml:"createStacks"`
	CollectStackOutputs   *bool `yaml:"collectStackOutputs"`
	UploadStaticArtifacts *bool `yaml:"uploadStaticArtifacts"`
}

func (o Options) RunUnitTestsEnabled() bool { return boolOr(o.RunUnitTests, DefaultRunUnitTests) }
func (o Options) MakePackagesEnabled() bool { return boolOr(o.MakePackages, DefaultMakePackages) }
func (o Options) UploadPackagesEnabled() bool {
	return boolOr(o.UploadPackages, DefaultUploadPackages)
}
func (o Options) CreateStacksEnabled() bool { return boolOr(o.CreateStacks, DefaultCreateStacks) }
func (o Options) CollectStackOutputsEnabled() bool {
	return boolOr(o.CollectStackOutputs, DefaultCollectStackOutputs)
}
func (o Options) UploadStaticArtifactsEnabled() bool {
	return boolOr(o.UploadStaticArtifacts, DefaultUploadStaticArtifacts)
}

// AWSSettings carries run-wide AWS client construction options. The profile
// is passed explicitly to client construction rather than exported into the
// process environment.
type AWSSettings struct {
	Profile string `yaml:"awsProfile"`
}

// PackageSpec describes one zip artifact built from the source tree.
type PackageSpec struct {
	Name                string     `yaml:"name"`
	SourceDirsToExclude []string   `yaml:"sourceDirsToExclude"`
	LibsToInclude       []string   `yaml:"libsToInclude"`
	LibsToExclude       []string   `yaml:"libsToExclude"`
	AddInitAtRoot       bool       `yaml:"addInitAtRoot"`
	AWS                 PackageAWS `yaml:"aws"`
}

// PackageAWS names the S3 destination for an uploaded package.
type PackageAWS struct {
	SrcS3Bucket string `yaml:"srcS3Bucket"`
	SrcS3Key    string `yaml:"srcS3Key"`
}

// StackSpec identifies one CloudFormation stack to create. Inline Params
// override entries from the JSON parameters file at TemplateParamsPath.
type StackSpec struct {
	Name               string            `yaml:"name"`
	TemplatePath       string            `yaml:"templatePath"`
	TemplateParamsPath string            `yaml:"templateParamsPath"`
	Params             map[string]string `yaml:"params"`
	Region             string            `yaml:"region"`
}

// StaticArtifactSpec maps a local directory onto an S3 bucket whose name is
// resolved from a previously created stack's outputs.
type StaticArtifactSpec struct {
	StaticPath           string `yaml:"staticPath"`
	StackNameForS3Bucket string `yaml:"stackNameForS3Bucket"`
	OutputKeyForS3Bucket string `yaml:"outputKeyForS3Bucket"`
}

// Load reads, parses, and validates the deployfile at path. Unknown YAML
// keys are rejected so typos surface at load time.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deployfile %s: %w", path, err)
	}
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse deployfile %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("deployfile %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks required fields and cross-references for every enabled
// step. Disabled steps do not constrain the document.
func (f *File) Validate() error {
	if (f.Options.RunUnitTestsEnabled() || f.Options.MakePackagesEnabled()) && strings.TrimSpace(f.SourcePath) == "" {
		return fmt.Errorf("sourcePath is required when unit tests or packaging are enabled")
	}
	for i, pkg := range f.Packages {
		if f.Options.MakePackagesEnabled() && strings.TrimSpace(pkg.Name) == "" {
			return fmt.Errorf("packages[%d]: name is required", i)
		}
		if f.Options.UploadPackagesEnabled() {
			if strings.TrimSpace(pkg.AWS.SrcS3Bucket) == "" || strings.TrimSpace(pkg.AWS.SrcS3Key) == "" {
				return fmt.Errorf("packages[%d] (%s): aws.srcS3Bucket and aws.srcS3Key are required when package upload is enabled", i, pkg.Name)
			}
		}
	}
	declared := make(map[string]struct{}, len(f.Stacks))
	for i, st := range f.Stacks {
		if strings.TrimSpace(st.Name) == "" {
			return fmt.Errorf("stacks[%d]: name is required", i)
		}
		if f.Options.CreateStacksEnabled() {
			if strings.TrimSpace(st.TemplatePath) == "" {
				return fmt.Errorf("stacks[%d] (%s): templatePath is required", i, st.Name)
			}
			if strings.TrimSpace(st.Region) == "" {
				return fmt.Errorf("stacks[%d] (%s): region is required", i, st.Name)
			}
		}
		if _, dup := declared[st.Name]; dup {
			return fmt.Errorf("stacks[%d]: duplicate stack name %q", i, st.Name)
		}
		declared[st.Name] = struct{}{}
	}
	for i, art := range f.StaticArtifacts {
		if strings.TrimSpace(art.StaticPath) == "" {
			return fmt.Errorf("staticArtifacts[%d]: staticPath is required", i)
		}
		if strings.TrimSpace(art.StackNameForS3Bucket) == "" || strings.TrimSpace(art.OutputKeyForS3Bucket) == "" {
			return fmt.Errorf("staticArtifacts[%d]: stackNameForS3Bucket and outputKeyForS3Bucket are required", i)
		}
		if _, ok := declared[art.StackNameForS3Bucket]; !ok {
			return fmt.Errorf("staticArtifacts[%d] references undeclared stack %q", i, art.StackNameForS3Bucket)
		}
	}
	return nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
