// Command detectstream runs object detection on a camera, video file or
// still image and shows the detections in a window, writes them to a video
// file or streams them to a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/swdee/go-detectstream"
	"github.com/swdee/go-detectstream/internal/logging"
	"github.com/swdee/go-detectstream/orchestrator"
	"github.com/swdee/go-detectstream/render"
	"github.com/swdee/go-detectstream/source"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func main() {

	// read in cli flags
	configFile := flag.String("c", "", "YAML config file")
	modelFile := flag.String("m", "../data/yolov8n-640-640.onnx", "ONNX model file")
	labelFile := flag.String("l", "../data/coco_80_labels_list.txt", "Text file containing model labels")
	variant := flag.String("t", "", "Model variant [primary-detector|alternate-detector]")
	backendKind := flag.String("b", "", "Backend [opencv-cpu|opencv-opencl|opencv-cuda|opencv-cuda-fp16]")
	vidFile := flag.String("v", "0", "Camera device id or video file to run object detection on")
	imgFile := flag.String("i", "", "Image file to run object detection on instead of video")
	outFile := flag.String("o", "", "Write the annotated video to this file")
	httpAddr := flag.String("a", "", "HTTP address to stream annotated video on, format address:port")
	window := flag.Bool("w", false, "Show the annotated video in a window")
	fps := flag.Float64("fps", 30, "Frame rate to read video files and check for new frames at")
	loop := flag.Bool("loop", false, "Loop video files")
	logLevel := flag.String("log", "info", "Log level [debug|info|warn|error]")
	dev := flag.Bool("dev", false, "Development logging")

	flag.Parse()

	log, err := logging.New("detectstream", *logLevel, *dev)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	defer log.Sync()

	cfg := detectstream.DefaultConfig()

	if *configFile != "" {
		cfg, err = detectstream.LoadConfig(*configFile)

		if err != nil {
			log.Fatalw("Error loading config", "file", *configFile, "error", err)
		}
	}

	// flags given on the command line override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "m":
			cfg.ModelPath = *modelFile
		case "l":
			cfg.LabelsPath = *labelFile
			cfg.Labels = nil
		case "t":
			cfg.ModelVariant = *variant
		case "b":
			cfg.Backend = *backendKind
		}
	})

	if cfg.ModelPath == "" {
		cfg.ModelPath = *modelFile
	}

	if cfg.LabelsPath == "" && len(cfg.Labels) == 0 {
		cfg.LabelsPath = *labelFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, options{
		vidFile:  *vidFile,
		imgFile:  *imgFile,
		outFile:  *outFile,
		httpAddr: *httpAddr,
		window:   *window,
		fps:      *fps,
		loop:     *loop,
	}, log); err != nil {
		log.Fatalw("Detection stream failed", "error", err)
	}
}

// options are the output and input settings of a run
type options struct {
	vidFile  string
	imgFile  string
	outFile  string
	httpAddr string
	window   bool
	fps      float64
	loop     bool
}

// run wires the source, orchestrator and outputs together until ctx is done
// or the orchestrator is disabled
func run(ctx context.Context, cfg detectstream.Config, opts options, log *zap.SugaredLogger) (err error) {

	o := orchestrator.New(cfg, orchestrator.Options{Logger: log})
	defer o.Close()

	if o.State() == orchestrator.Disabled {
		return o.Err()
	}

	var src source.Source

	if opts.imgFile != "" {
		src, err = source.OpenStill(opts.imgFile)
	} else {
		src, err = source.OpenVideo(opts.vidFile, source.VideoOptions{
			FPS:    videoFPS(opts),
			Loop:   opts.loop,
			Logger: log,
		})
	}

	if err != nil {
		return err
	}

	out, err := newOutputs(cfg, opts, log)

	if err != nil {
		src.Close()
		return err
	}

	defer func() {
		err = multierr.Append(err, multierr.Combine(src.Close(), out.Close()))
	}()

	interval := time.Duration(float64(time.Second) / opts.fps)

	go func() {
		if err := o.Run(ctx, src, interval); err != nil && ctx.Err() == nil {
			log.Errorw("Frame loop stopped", "error", err)
		}
	}()

	log.Infow("Detection stream started",
		"variant", cfg.ModelVariant,
		"backend", cfg.Backend,
		"display", fmt.Sprintf("%dx%d", cfg.DisplayWidth, cfg.DisplayHeight),
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-o.Events():
			if !ok {
				return nil
			}

			log.Infow("Detections",
				"session", ev.SessionID,
				"summary", ev.Summary,
				"count", len(ev.Detections),
				"elapsed", ev.Elapsed,
			)

			f, ok := src.Latest()

			if !ok {
				continue
			}

			if err := out.Show(f.Image, ev); err != nil {
				log.Errorw("Error rendering frame", "error", err)
			}
		}
	}
}

// videoFPS paces file playback, capture devices deliver at their own rate
func videoFPS(opts options) float64 {

	if _, err := os.Stat(opts.vidFile); err == nil {
		return opts.fps
	}

	return 0
}

// outputs are the destinations annotated frames are sent to
type outputs struct {
	display image.Point
	window  *gocv.Window
	writer  *gocv.VideoWriter
	stream  *mjpegStream
	server  *http.Server
	log     *zap.SugaredLogger
}

func newOutputs(cfg detectstream.Config, opts options, log *zap.SugaredLogger) (*outputs, error) {

	out := &outputs{
		display: image.Pt(cfg.DisplayWidth, cfg.DisplayHeight),
		log:     log,
	}

	if opts.window {
		out.window = gocv.NewWindow("detectstream")
	}

	if opts.outFile != "" {
		w, err := gocv.VideoWriterFile(opts.outFile, "MJPG", opts.fps,
			cfg.DisplayWidth, cfg.DisplayHeight, true)

		if err != nil {
			out.Close()
			return nil, errors.Wrap(err, "error creating video writer")
		}

		out.writer = w
	}

	if opts.httpAddr != "" {
		out.stream = newMJPEGStream(log)

		mux := http.NewServeMux()
		mux.Handle("/stream", out.stream)

		out.server = &http.Server{Addr: opts.httpAddr, Handler: mux}

		go func() {
			if err := out.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("HTTP server stopped", "error", err)
			}
		}()

		log.Infof("Open browser and view video at http://%s/stream", opts.httpAddr)
	}

	return out, nil
}

// Show draws the event over the frame scaled to the display size and sends
// it to each output
func (out *outputs) Show(frame image.Image, ev orchestrator.Event) error {

	img, err := gocv.ImageToMatRGB(frame)

	if err != nil {
		return errors.Wrap(err, "error converting frame")
	}

	defer img.Close()

	resImg := gocv.NewMat()
	defer resImg.Close()

	gocv.Resize(img, &resImg, out.display, 0, 0, gocv.InterpolationLinear)

	render.Event(&resImg, ev, render.DefaultFont())

	if out.window != nil {
		out.window.IMShow(resImg)
		out.window.WaitKey(1)
	}

	if out.writer != nil {
		if err := out.writer.Write(resImg); err != nil {
			return errors.Wrap(err, "error writing video frame")
		}
	}

	if out.stream != nil {
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, resImg)

		if err != nil {
			return errors.Wrap(err, "error encoding jpg")
		}

		out.stream.Publish(buf.GetBytes())
		buf.Close()
	}

	return nil
}

// Close releases the window, writer and server
func (out *outputs) Close() error {

	var err error

	if out.window != nil {
		err = multierr.Append(err, out.window.Close())
	}

	if out.writer != nil {
		err = multierr.Append(err, out.writer.Close())
	}

	if out.server != nil {
		out.stream.Close()
		err = multierr.Append(err, out.server.Close())
	}

	return err
}
