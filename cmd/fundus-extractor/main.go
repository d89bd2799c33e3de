package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/neurolens/fundus-extractor/internal/config"
	"github.com/neurolens/fundus-extractor/internal/logging"
	"github.com/neurolens/fundus-extractor/internal/utils"
	"github.com/neurolens/fundus-extractor/pkg/enhance"
	"github.com/neurolens/fundus-extractor/pkg/predictor"
	"github.com/neurolens/fundus-extractor/pkg/processing"
	"github.com/neurolens/fundus-extractor/pkg/quality"
	"github.com/neurolens/fundus-extractor/pkg/region"
	"github.com/neurolens/fundus-extractor/pkg/selector"
	"github.com/neurolens/fundus-extractor/pkg/session"
	"github.com/neurolens/fundus-extractor/pkg/video"
)

func main() {
	var in, outDir, cfgPath, ext string
	var frameIndex, qualityOut int
	var lossless, printDataURL, debug, verbose bool

	var predictURL string
	var age int
	var sbp, dbp float64

	flag.StringVar(&in, "in", "", "input exam video (mp4/mov) or fundus photo (jpg/png/webp)")
	flag.StringVar(&outDir, "out", "out", "output directory")
	flag.StringVar(&cfgPath, "config", "", "config file path (JSON)")
	flag.IntVar(&frameIndex, "frame", -1, "frame index to use; -1 selects the best frame automatically")

	flag.StringVar(&ext, "ext", "jpg", "output format: jpg|png|webp")
	flag.IntVar(&qualityOut, "quality", 95, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP lossless mode")
	flag.BoolVar(&printDataURL, "dataurl", false, "print the JPEG data URL to stdout")
	flag.BoolVar(&debug, "debug", false, "write the raw selected frame and a crop overlay")
	flag.BoolVar(&verbose, "v", false, "verbose logging")

	flag.StringVar(&predictURL, "predict", "", "risk API base URL; when set, the result is submitted for prediction")
	flag.IntVar(&age, "age", 0, "patient age (required with -predict)")
	flag.Float64Var(&sbp, "sbp", 0, "systolic blood pressure in mmHg (required with -predict)")
	flag.Float64Var(&dbp, "dbp", 0, "diastolic blood pressure in mmHg (required with -predict)")

	flag.Parse()
	logging.Init(verbose)

	if in == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -in exam.mp4 [-frame N] [-out outdir] [-ext jpg|png|webp] [-dataurl] [-predict url -age N -sbp N -dbp N]\n",
			filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.LoadFromFile(cfgPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load config")
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	if err := utils.EnsureDir(outDir); err != nil {
		log.Fatal().Err(err).Msg("failed to create output directory")
	}

	ctx := context.Background()
	processor := processing.NewProcessor()

	scorer := quality.NewWithWeights(quality.Weights{
		Sharpness:  cfg.Quality.SharpnessWeight,
		Contrast:   cfg.Quality.ContrastWeight,
		Brightness: cfg.Quality.BrightnessWeight,
		Glare:      cfg.Quality.GlareWeight,
	})
	sel := selector.NewWithOptions(log.Logger, scorer, cfg.Selector.FPS, cfg.Selector.MaxSamples)
	detector := region.NewWithConfig(region.DetectionConfig{
		MinBrightness:  cfg.Detector.MinBrightness,
		MaxBrightness:  cfg.Detector.MaxBrightness,
		RadiusFraction: cfg.Detector.RadiusFraction,
	})
	pipeline := enhance.NewWithConfig(enhance.Config{
		GlareThreshold: cfg.Pipeline.GlareThreshold,
		GlareFactor:    cfg.Pipeline.GlareFactor,
		SampleFraction: cfg.Pipeline.SampleFraction,
		BalanceMin:     cfg.Pipeline.BalanceMin,
		BalanceMax:     cfg.Pipeline.BalanceMax,
		BlurSigma:      cfg.Pipeline.BlurSigma,
		DetailGain:     cfg.Pipeline.DetailGain,
		CanonicalSize:  cfg.Pipeline.CanonicalSize,
	})

	sess := session.NewWithComponents(log.Logger, sel, detector, pipeline, nil)

	// Direct photo upload skips the video stages entirely.
	if utils.IsImageFile(in) {
		frame, err := processor.LoadImage(in)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load image")
		}
		if err := sess.UseFrame(frame); err != nil {
			log.Fatal().Err(err).Msg("failed to adopt frame")
		}
	} else {
		src, err := video.Open(ctx, in, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open video")
		}
		if err := sess.Load(src); err != nil {
			log.Fatal().Err(err).Msg("failed to load video into session")
		}

		if frameIndex >= 0 {
			if err := sess.SelectFrame(ctx, frameIndex); err != nil {
				log.Fatal().Err(err).Msg("failed to extract requested frame")
			}
		} else {
			err := sess.AutoSelect(ctx, func(sampled, total int) {
				log.Info().Int("sampled", sampled).Int("total", total).Msg("scoring frames")
			})
			if err != nil {
				log.Fatal().Err(err).Msg("best-frame search failed")
			}
			m := sess.Metrics()
			log.Info().
				Int("frame", sess.FrameIndex()).
				Float64("sharpness", m.Sharpness).
				Float64("contrast", m.Contrast).
				Float64("brightness", m.Brightness).
				Float64("glare", m.Glare).
				Float64("total", m.Total).
				Msg("selected frame")
		}
	}

	editor, err := sess.Editor()
	if err != nil {
		log.Fatal().Err(err).Msg("no editor available")
	}
	crop := editor.Region()
	log.Info().
		Float64("center_x", crop.CenterX).
		Float64("center_y", crop.CenterY).
		Float64("radius", crop.Radius).
		Msg("detected fundus region")

	if debug {
		rawPath := filepath.Join(outDir, "frame_raw."+strings.ToLower(ext))
		if err := processor.SaveFrame(sess.Frame(), rawPath, ext, qualityOut, lossless); err != nil {
			log.Warn().Err(err).Msg("failed to save raw frame")
		} else {
			log.Info().Str("path", rawPath).Msg("wrote raw frame")
		}

		overlay := processor.CreateDebugOverlay(sess.Frame(), crop)
		overlayPath := filepath.Join(outDir, "frame_overlay."+strings.ToLower(ext))
		if err := processor.SaveFrame(overlay, overlayPath, ext, qualityOut, lossless); err != nil {
			log.Warn().Err(err).Msg("failed to save crop overlay")
		} else {
			log.Info().Str("path", overlayPath).Msg("wrote crop overlay")
		}
	}

	dataURL, err := sess.Process(func(stage int, name string) {
		log.Info().Int("stage", stage+1).Int("stages", len(enhance.StageNames)).Str("name", name).Msg("enhancing")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("enhancement failed")
	}

	result, err := sess.Result()
	if err != nil {
		log.Fatal().Err(err).Msg("no result available")
	}

	outPath := filepath.Join(outDir, "fundus_enhanced."+strings.ToLower(ext))
	if err := processor.SaveFrame(result, outPath, ext, qualityOut, lossless); err != nil {
		log.Fatal().Err(err).Msg("failed to save enhanced image")
	}
	log.Info().Str("path", outPath).Msg("wrote enhanced image")

	if printDataURL {
		fmt.Println(dataURL)
	}

	if predictURL != "" {
		client, err := predictor.NewClient(predictURL, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create predictor client")
		}

		jpegData, err := processor.EncodeJPEG(result, processing.DataURLQuality)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to encode image for prediction")
		}

		vitals := predictor.Vitals{Age: age, SystolicBP: sbp, DiastolicBP: dbp}
		assessment, err := client.PredictRisk(ctx, jpegData, vitals)
		if err != nil {
			log.Fatal().Err(err).Msg("risk prediction failed")
		}

		fmt.Printf("risk score: %.2f%%\nrisk level: %s\n", assessment.RiskScore, assessment.RiskLevel)
	}
}
