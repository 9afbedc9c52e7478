package vkcore

import (
	"io"
	"log"
	"os"
)

// LogWriters names the three destinations the device's loggers write
// to. A nil field falls back to its on-disk default (info_log.txt,
// error_log.txt, warn_log.txt in the working directory).
type LogWriters struct {
	Info io.Writer
	Error io.Writer
	Warn io.Writer
}

type deviceLog struct {
	info *log.Logger
	error *log.Logger
	warn *log.Logger
	files []*os.File
}

func openLogFile(name string) (*os.File, error) {
	return os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
}

func newDeviceLog(w *LogWriters) (*deviceLog, error) {
	dl := &deviceLog{}

	infoW, errW, warnW := io.Writer(nil), io.Writer(nil), io.Writer(nil)
	if w != nil {
		infoW, errW, warnW = w.Info, w.Error, w.Warn
	}

	if infoW == nil {
		f, err := openLogFile("info_log.txt")
		if err != nil {
			return nil, err
		}
		dl.files = append(dl.files, f)
		infoW = f
	}
	if errW == nil {
		f, err := openLogFile("error_log.txt")
		if err != nil {
			return nil, err
		}
		dl.files = append(dl.files, f)
		errW = f
	}
	if warnW == nil {
		f, err := openLogFile("warn_log.txt")
		if err != nil {
			return nil, err
		}
		dl.files = append(dl.files, f)
		warnW = f
	}

	dl.info = log.New(infoW, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	dl.error = log.New(errW, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	dl.warn = log.New(warnW, "WARNING: ", log.Ldate|log.Ltime|log.Lshortfile)
	return dl, nil
}

func (dl *deviceLog) close() {
	for _, f := range dl.files {
		f.Close()
	}
}
