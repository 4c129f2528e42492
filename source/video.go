package source

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// VideoOptions configure a VideoSource
type VideoOptions struct {
	// FPS paces reading from video files, zero reads as fast as the capture
	// device delivers
	FPS float64
	// Loop rewinds a video file to the first frame once the end is reached
	Loop bool
	// Logger for capture errors, nil disables logging
	Logger *zap.SugaredLogger
}

// VideoSource captures frames from a camera device or video file and keeps
// the latest one in a Slot
type VideoSource struct {
	*Slot
	video *gocv.VideoCapture
	opts  VideoOptions
	log   *zap.SugaredLogger
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// OpenVideo opens a capture device id such as "0" or a video file path and
// starts capturing frames in the background
func OpenVideo(device string, opts VideoOptions) (*VideoSource, error) {

	video, err := gocv.OpenVideoCapture(device)

	if err != nil {
		return nil, errors.Wrapf(err, "error opening video capture %s", device)
	}

	log := opts.Logger

	if log == nil {
		log = zap.NewNop().Sugar()
	}

	v := &VideoSource{
		Slot:  NewSlot(),
		video: video,
		opts:  opts,
		log:   log.With("device", device),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	go v.capture()

	return v, nil
}

// capture reads frames until stopped or the video ends
func (v *VideoSource) capture() {

	defer close(v.done)

	img := gocv.NewMat()
	defer img.Close()

	var ticker *time.Ticker

	if v.opts.FPS > 0 {
		ticker = time.NewTicker(time.Duration(float64(time.Second) / v.opts.FPS))
		defer ticker.Stop()
	}

	// rewound guards against looping on a source that can not seek
	rewound := false

	for {
		select {
		case <-v.stop:
			return
		default:
		}

		if ok := v.video.Read(&img); !ok {

			if v.opts.Loop && !rewound {
				v.video.Set(gocv.VideoCapturePosFrames, 0)
				rewound = true
				continue
			}

			v.log.Infow("Video capture ended")
			return
		}

		rewound = false

		if img.Empty() {
			continue
		}

		frame, err := img.ToImage()

		if err != nil {
			v.log.Errorw("Error converting frame", "error", err)
			continue
		}

		v.Publish(frame, time.Now())

		if ticker != nil {
			select {
			case <-v.stop:
				return
			case <-ticker.C:
			}
		}
	}
}

// Close stops capturing and releases the device
func (v *VideoSource) Close() error {

	var err error

	v.once.Do(func() {
		close(v.stop)
		<-v.done
		v.Slot.Close()
		err = v.video.Close()
	})

	return err
}
