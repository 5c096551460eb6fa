// Package cli contains the camcalib command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/camcalib/logging"
)

const (
	configFlag      = "config"
	calibrationFlag = "calibration"
	debugFlag       = "debug"
	logFileFlag     = "log-file"
	logLevelFlag    = "log-level"
	noOverlaysFlag  = "no-overlays"
	labelsFlag      = "labels"
)

var app = &cli.App{
	Name:            "camcalib",
	Usage:           "calibrate a camera from chessboard images",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  logLevelFlag,
			Usage: "minimum `LEVEL` to log: debug, info, warn or error",
			Value: "info",
		},
		&cli.StringFlag{
			Name:  logFileFlag,
			Usage: "also write logs to `FILE`, rotated once it grows past 10MB",
		},
	},
	Before: func(c *cli.Context) error {
		_, err := logging.LevelFromString(c.String(logLevelFlag))
		return err
	},
	Commands: []*cli.Command{
		{
			Name:      "calibrate",
			Usage:     "detect corners, solve for the camera model and write the results",
			UsageText: "camcalib calibrate --config <path> [--no-overlays]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     configFlag,
					Aliases:  []string{"c"},
					Usage:    "load configuration from `FILE`",
					Required: true,
				},
				&cli.BoolFlag{
					Name:  noOverlaysFlag,
					Usage: "skip writing the axes and cube overlays",
				},
				&cli.BoolFlag{
					Name:  labelsFlag,
					Usage: "label the drawn axes",
				},
			},
			Action: CalibrateAction,
		},
		{
			Name:      "overlay",
			Usage:     "draw axes and cubes using a previously written calibration",
			UsageText: "camcalib overlay --config <path> [--calibration <path>]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     configFlag,
					Aliases:  []string{"c"},
					Usage:    "load configuration from `FILE`",
					Required: true,
				},
				&cli.StringFlag{
					Name:  calibrationFlag,
					Usage: "calibration `FILE`, defaults to calibration.json in the output directory",
				},
				&cli.BoolFlag{
					Name:  labelsFlag,
					Usage: "label the drawn axes",
				},
			},
			Action: OverlayAction,
		},
		{
			Name:      "undistort",
			Usage:     "remove lens distortion from the configured images",
			UsageText: "camcalib undistort --config <path> [--calibration <path>]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     configFlag,
					Aliases:  []string{"c"},
					Usage:    "load configuration from `FILE`",
					Required: true,
				},
				&cli.StringFlag{
					Name:  calibrationFlag,
					Usage: "calibration `FILE`, defaults to calibration.json in the output directory",
				},
			},
			Action: UndistortAction,
		},
		{
			Name:   "schema",
			Usage:  "print the JSON schema of the config file",
			Action: SchemaAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}

// loggerFromContext builds the logger for a command. Log lines go to the app's error writer and,
// with --log-file, to a rotated file. The returned func closes the file. --debug overrides
// --log-level, which Before has already checked.
func loggerFromContext(c *cli.Context) (logging.Logger, func()) {
	logger := logging.NewBlankLogger("camcalib")
	if !c.Bool(debugFlag) {
		level, err := logging.LevelFromString(c.String(logLevelFlag))
		if err != nil {
			level = logging.INFO
		}
		logger.SetLevel(level)
	}
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))

	path := c.String(logFileFlag)
	if path == "" {
		return logger, func() {}
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
	}
	logger.AddAppender(logging.NewWriterAppender(file))
	return logger, func() {
		//nolint:errcheck
		file.Close()
	}
}
