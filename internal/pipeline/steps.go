// File: internal/pipeline/steps.go
// Brief: The seven deployment steps executed by the engine.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/example/awsdeploy/internal/archive"
	"github.com/example/awsdeploy/internal/config"
	"github.com/example/awsdeploy/internal/provision"
	"go.uber.org/zap"
)

func (e *Engine) runTests(ctx context.Context) Outcome {
	if !e.cfg.Options.RunUnitTestsEnabled() {
		return Skipped
	}
	passed, err := e.runner.RunAll(ctx, e.cfg.SourcePath)
	if err != nil {
		e.log.Error("unit test run failed", zap.Error(err))
		return Failed
	}
	if !passed {
		return Failed
	}
	return Succeeded
}

func (e *Engine) buildPackages(ctx context.Context) Outcome {
	if !e.cfg.Options.MakePackagesEnabled() {
		return Skipped
	}
	for _, pkg := range e.cfg.Packages {
		if err := archive.BuildPackage(pkg.Name, e.cfg.SourcePath, pkg.SourceDirsToExclude, pkg.AddInitAtRoot); err != nil {
			e.log.Error("package build failed", zap.String("package", pkg.Name), zap.Error(err))
			return Failed
		}
		e.log.Info("created package", zap.String("package", pkg.Name))
		if e.cfg.LibPath == "" {
			continue
		}
		if err := archive.MergeLibraries(pkg.Name, e.cfg.LibPath, pkg.LibsToExclude, pkg.LibsToInclude); err != nil {
			e.log.Error("library merge failed", zap.String("package", pkg.Name), zap.Error(err))
			return Failed
		}
		e.log.Info("merged libraries into package",
			zap.String("package", pkg.Name),
			zap.String("libPath", e.cfg.LibPath))
	}
	return Succeeded
}

func (e *Engine) initClients(ctx context.Context) Outcome {
	clients, err := e.factory(ctx, e.cfg.AWS.Profile)
	if err != nil {
		e.log.Error("provider client construction failed", zap.Error(err))
		return Failed
	}
	e.clients = clients
	return Succeeded
}

func (e *Engine) uploadPackages(ctx context.Context) Outcome {
	if !e.cfg.Options.UploadPackagesEnabled() {
		return Skipped
	}
	for _, pkg := range e.cfg.Packages {
		if err := e.clients.Uploader.UploadFile(ctx, pkg.Name, pkg.AWS.SrcS3Bucket, pkg.AWS.SrcS3Key); err != nil {
			e.log.Error("package upload failed", zap.String("package", pkg.Name), zap.Error(err))
			return Failed
		}
		e.log.Info("uploaded package",
			zap.String("package", pkg.Name),
			zap.String("bucket", pkg.AWS.SrcS3Bucket),
			zap.String("key", pkg.AWS.SrcS3Key))
	}
	return Succeeded
}

func (e *Engine) createStacks(ctx context.Context) Outcome {
	if !e.cfg.Options.CreateStacksEnabled() {
		return Skipped
	}
	for _, st := range e.cfg.Stacks {
		body, err := os.ReadFile(st.TemplatePath)
		if err != nil {
			e.log.Error("template read failed", zap.String("stack", st.Name), zap.Error(err))
			return Failed
		}
		params, err := loadStackParameters(st)
		if err != nil {
			e.log.Error("parameter load failed", zap.String("stack", st.Name), zap.Error(err))
			return Failed
		}
		stackID, err := e.clients.Provisioner.Submit(ctx, st.Name, string(body), params, st.Region)
		if err != nil {
			e.log.Error("stack creation failed", zap.String("stack", st.Name), zap.Error(err))
			return Failed
		}
		e.log.Info("started stack creation",
			zap.String("stack", st.Name),
			zap.String("stackId", stackID))
		if err := e.clients.Provisioner.AwaitCreate(ctx, st.Name, st.Region); err != nil {
			if errors.Is(err, provision.ErrWaitTimeout) {
				e.log.Error("stack creation timed out", zap.String("stack", st.Name), zap.Error(err))
			} else {
				e.log.Error("stack creation did not complete", zap.String("stack", st.Name), zap.Error(err))
			}
			return Failed
		}
		e.log.Info("stack created", zap.String("stack", st.Name))
	}
	return Succeeded
}

func (e *Engine) collectOutputs(ctx context.Context) Outcome {
	if !e.cfg.Options.CollectStackOutputsEnabled() {
		return Skipped
	}
	for _, st := range e.cfg.Stacks {
		outputs, err := e.clients.Provisioner.CollectOutputs(ctx, st.Name, st.Region)
		if err != nil {
			e.log.Error("output collection failed", zap.String("stack", st.Name), zap.Error(err))
			return Failed
		}
		e.state.RecordOutputs(st.Name, outputs)
		e.log.Info("collected stack outputs",
			zap.String("stack", st.Name),
			zap.Int("count", len(outputs)))
	}
	return Succeeded
}

func (e *Engine) uploadStaticArtifacts(ctx context.Context) Outcome {
	if !e.cfg.Options.UploadStaticArtifactsEnabled() {
		return Skipped
	}
	for _, art := range e.cfg.StaticArtifacts {
		outputs := e.state.Outputs(art.StackNameForS3Bucket)
		if len(outputs) == 0 {
			e.log.Info("no outputs recorded for stack, skipping static artifact",
				zap.String("stack", art.StackNameForS3Bucket),
				zap.String("staticPath", art.StaticPath))
			continue
		}
		value, ok := e.state.LookupOutput(art.StackNameForS3Bucket, art.OutputKeyForS3Bucket)
		if !ok {
			e.log.Error("stack output key not found",
				zap.String("stack", art.StackNameForS3Bucket),
				zap.String("outputKey", art.OutputKeyForS3Bucket))
			return Failed
		}
		bucket := bucketFromOutput(value)
		e.log.Info("uploading static artifacts",
			zap.String("staticPath", art.StaticPath),
			zap.String("bucket", bucket))
		if err := e.clients.Uploader.UploadDirectory(ctx, art.StaticPath, bucket); err != nil {
			e.log.Error("static artifact upload failed", zap.String("staticPath", art.StaticPath), zap.Error(err))
			return Failed
		}
	}
	return Succeeded
}

// loadStackParameters merges the stack's JSON parameters file, when present,
// with its inline params. Inline values win.
func loadStackParameters(st config.StackSpec) (map[string]string, error) {
	merged := make(map[string]string)
	if st.TemplateParamsPath != "" {
		data, err := os.ReadFile(st.TemplateParamsPath)
		if err != nil {
			return nil, fmt.Errorf("read parameters file %s: %w", st.TemplateParamsPath, err)
		}
		var fileParams []struct {
			ParameterKey   string `json:"ParameterKey"`
			ParameterValue string `json:"ParameterValue"`
		}
		if err := json.Unmarshal(data, &fileParams); err != nil {
			return nil, fmt.Errorf("parse parameters file %s: %w", st.TemplateParamsPath, err)
		}
		for _, p := range fileParams {
			merged[p.ParameterKey] = p.ParameterValue
		}
	}
	for k, v := range st.Params {
		merged[k] = v
	}
	return merged, nil
}

// bucketFromOutput accepts either a bare bucket name or an ARN-form output
// value and returns the bucket name.
func bucketFromOutput(value string) string {
	if i := strings.LastIndex(value, ":"); i >= 0 {
		return value[i+1:]
	}
	return value
}
