package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// sink receives generated class files, keyed by binary class name.
type sink interface {
	write(className string, b []byte) error
	close() error
}

func classPath(className string) string {
	return strings.ReplaceAll(className, ".", "/") + ".class"
}

// dirSink writes class files under a directory, one subdirectory per
// package.
type dirSink struct {
	dir string
}

func (s *dirSink) write(className string, b []byte) error {
	path := filepath.Join(s.dir, filepath.FromSlash(classPath(className)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func (s *dirSink) close() error {
	return nil
}

const jarManifest = "Manifest-Version: 1.0\r\nCreated-By: classforge\r\n\r\n"

// jarSink packs class files into a jar.
type jarSink struct {
	f  *os.File
	zw *zip.Writer
}

func newJarSink(path string) (*jarSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := &jarSink{f: f, zw: zip.NewWriter(f)}
	if err = s.add("META-INF/MANIFEST.MF", []byte(jarManifest)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *jarSink) add(name string, b []byte) error {
	w, err := s.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func (s *jarSink) write(className string, b []byte) error {
	return s.add(classPath(className), b)
}

func (s *jarSink) close() error {
	if err := s.zw.Close(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("error writing jar: %w", err)
	}
	return s.f.Close()
}
