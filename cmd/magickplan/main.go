package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/magickplan"
	"github.com/menta2k/magickplan/internal/app"
	"github.com/menta2k/magickplan/internal/config"
	"github.com/menta2k/magickplan/internal/utils"
	"github.com/menta2k/magickplan/pkg/detection"
	"github.com/menta2k/magickplan/pkg/operation"
	"github.com/menta2k/magickplan/pkg/processing"
	"github.com/menta2k/magickplan/pkg/types"
)

const defaultOps = `[{"type":"fill","width":1200,"height":630,"gravity":"face"}]`

func main() {
	var in, outDir, opsJSON, facesJSON, configPath string
	var backend, url, model, tool string
	var sendFmt string
	var sendSize, sendQ int
	var describe, verbose bool

	flag.StringVar(&in, "in", "", "input image path, directory or URL")
	flag.StringVar(&outDir, "out", "out", "output directory for plan scripts")
	flag.StringVar(&opsJSON, "ops", defaultOps, "operations as a JSON array, or @file")
	flag.StringVar(&facesJSON, "faces", "", "known faces as a JSON array in source pixels; skips detection")
	flag.StringVar(&configPath, "config", "", "optional config file; flags override it")

	flag.StringVar(&backend, "backend", "", "face detector: none|ollama|llamacpp")
	flag.StringVar(&url, "url", "", "detector server URL (defaults: ollama=http://localhost:11434, llamacpp=http://localhost:8080)")
	flag.StringVar(&model, "model", "", "vision model name")
	flag.StringVar(&tool, "tool", "", "ImageMagick executable used in commands")

	flag.StringVar(&sendFmt, "sendfmt", "", "format sent to the model: jpg|png")
	flag.IntVar(&sendSize, "sendsize", 0, "max long side sent to the model (px)")
	flag.IntVar(&sendQ, "sendq", 0, "JPEG quality for the image sent to the model (1-100)")

	flag.BoolVar(&describe, "describe", false, "ask the model to describe the first input and exit")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if in == "" {
		log.Fatalf("usage: %s -in input.jpg|dir|URL [-ops '[...]'] [-faces '[...]'] [-backend none|ollama|llamacpp] [-url server_url] [-out outdir]", filepath.Base(os.Args[0]))
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	override(&cfg.Detection.Backend, backend)
	override(&cfg.Detection.URL, url)
	override(&cfg.Detection.Model, model)
	override(&cfg.Detection.SendFormat, sendFmt)
	override(&cfg.Planner.Tool, tool)
	if sendSize > 0 {
		cfg.Detection.SendSize = sendSize
	}
	if sendQ > 0 {
		cfg.Detection.SendQuality = sendQ
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ops, err := readOperations(opsJSON)
	if err != nil {
		log.Fatal(err)
	}
	var faces types.Faces
	if facesJSON != "" {
		if err := json.Unmarshal([]byte(facesJSON), &faces); err != nil {
			log.Fatalf("invalid -faces: %v", err)
		}
	}

	proc, err := app.NewProcessor(cfg)
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	inputs, err := listInputs(in)
	if err != nil {
		log.Fatal(err)
	}

	if describe {
		runDescribe(ctx, cfg, proc, inputs[0], log)
		return
	}

	detector, err := app.NewDetector(cfg, proc, nil, log)
	if err != nil {
		log.Fatal(err)
	}
	planner := app.NewPlanner(cfg, proc, detector, log)

	if err := utils.EnsureDir(outDir); err != nil {
		log.Fatal(err)
	}

	failed := 0
	for _, src := range inputs {
		result, err := planner.PlanSource(ctx, src, faces, ops)
		if err != nil {
			log.WithField("source", src).WithError(err).Error("plan failed")
			failed++
			continue
		}
		if err := writePlan(outDir, src, result); err != nil {
			log.WithField("source", src).WithError(err).Error("write failed")
			failed++
		}
	}

	log.Infof("planned %d of %d inputs", len(inputs)-failed, len(inputs))
	if failed > 0 {
		os.Exit(1)
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func readOperations(arg string) ([]operation.Spec, error) {
	data := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		var err error
		if data, err = os.ReadFile(arg[1:]); err != nil {
			return nil, fmt.Errorf("failed to read operations file: %w", err)
		}
	}
	var ops []operation.Spec
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("invalid -ops: %w", err)
	}
	return ops, nil
}

func listInputs(in string) ([]string, error) {
	if !utils.DirExists(in) {
		return []string{in}, nil
	}
	files, err := utils.ListImageFiles(in)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", in, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", in)
	}
	return files, nil
}

// writePlan stores the plan as JSON next to a runnable shell script
func writePlan(outDir, src string, result *magickplan.Result) error {
	name := src
	if isURL(src) {
		name = filepath.Base(strings.SplitN(src, "?", 2)[0])
	}

	planPath := utils.GenerateOutputFilename(name, outDir, "", ".plan", "json")
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(planPath, data, 0o644); err != nil {
		return err
	}

	target := utils.GenerateOutputFilename(name, outDir, "", "", extensionFor(result.State.Encoding))
	scriptPath := utils.GenerateOutputFilename(name, outDir, "", ".plan", "sh")
	if err := os.WriteFile(scriptPath, []byte(planScript(src, target, result.Pipeline)), 0o755); err != nil {
		return err
	}

	fmt.Printf("%s -> %s (%dx%d %s)\n", src, scriptPath, result.State.Width, result.State.Height, result.State.Encoding)
	return nil
}

// planScript renders a shell script feeding src through pipeline into target.
// URL sources are streamed with curl.
func planScript(src, target, pipeline string) string {
	if pipeline == "" {
		pipeline = "cat"
	}

	var line string
	if isURL(src) {
		line = fmt.Sprintf("curl -fsSL %s | %s > %s", shellescape.Quote(src), pipeline, shellescape.Quote(target))
	} else {
		line = fmt.Sprintf("%s < %s > %s", pipeline, shellescape.Quote(src), shellescape.Quote(target))
	}
	return "#!/bin/sh\nset -e\n" + line + "\n"
}

func isURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func extensionFor(encoding string) string {
	if encoding == "jpeg" {
		return "jpg"
	}
	return encoding
}

func runDescribe(ctx context.Context, cfg *config.Config, proc *processing.Processor, src string, log *logrus.Logger) {
	vc, err := app.NewVisionClient(cfg.Detection.Backend, cfg.Detection.URL)
	if err != nil {
		log.Fatal(err)
	}
	data, err := proc.LoadSource(ctx, src)
	if err != nil {
		log.Fatal(err)
	}

	answer, err := detection.NewVisionDetector(vc, proc, cfg.Detection.Model).Describe(ctx, detection.Source{Data: data})
	if err != nil {
		log.Fatalf("describe failed: %v", err)
	}
	fmt.Println(answer)
}
