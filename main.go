/*
 * miniker - Main process.
 *
 * Copyright (c) 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/aharrow/miniker/command/reader"
	"github.com/aharrow/miniker/config/bootconfig"
	"github.com/aharrow/miniker/fs"
	"github.com/aharrow/miniker/kernel"
	logger "github.com/aharrow/miniker/util/logger"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "miniker.cfg", "Boot configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optFSImage := getopt.StringLong("fsimg", 'f', "", "Filesystem image file, overrides the config file's fsimage key")
	optDebug := getopt.BoolLong("debug", 'd', "Enable debug logging")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		var err error
		file, err = os.Create(*optLogFile)
		if err != nil {
			slog.Error("unable to create log file", "file", *optLogFile, "err", err)
			os.Exit(1)
		}
	}

	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	debug := *optDebug
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, &debug))
	slog.SetDefault(Logger)

	Logger.Info("miniker started")

	cfg := bootconfig.Defaults()
	if _, err := os.Stat(*optConfig); err == nil {
		cfg, err = bootconfig.Load(*optConfig)
		if err != nil {
			Logger.Error("unable to load boot configuration", "file", *optConfig, "err", err)
			os.Exit(1)
		}
	} else if *optConfig != "miniker.cfg" {
		Logger.Error("configuration file not found", "file", *optConfig)
		os.Exit(1)
	}

	if *optFSImage != "" {
		cfg.FSImage = *optFSImage
	}

	fsImage := kernel.DefaultImage()
	if cfg.FSImage != "" {
		data, err := os.ReadFile(cfg.FSImage)
		if err != nil {
			Logger.Error("unable to read filesystem image", "file", cfg.FSImage, "err", err)
			os.Exit(1)
		}
		img, err := fs.Load(data)
		if err != nil {
			Logger.Error("unable to decode filesystem image", "file", cfg.FSImage, "err", err)
			os.Exit(1)
		}
		fsImage = img
	}

	k := kernel.New(fsImage)
	if err := k.Boot(kernel.BootOptions{PITHz: cfg.PITHz, RTCHz: cfg.RTCHz, Programs: cfg.IPL}); err != nil {
		Logger.Error("boot failed", "err", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		Logger.Info("shutting down")
		k.Shutdown()
		os.Exit(0)
	}()

	reader.ConsoleReader(k)

	Logger.Info("operator console closed, shutting down")
	k.Shutdown()
}
