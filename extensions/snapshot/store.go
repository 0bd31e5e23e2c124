// Package snapshot writes binary metadata snapshots to a local directory or an FTP server.
package snapshot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
)

// Store is a place snapshot files are created in and read from
type Store interface {
	Create(name string) (io.WriteCloser, error)
	Open(name string) (io.ReadCloser, error)
}

// LocalStore stores snapshots below Dir
type LocalStore struct {
	Dir string
}

func (s *LocalStore) Create(name string) (io.WriteCloser, error) {
	path := filepath.Join(s.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func (s *LocalStore) Open(name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.Dir, name))
}

// FTPStore stores snapshots on an FTP server, one connection per file
type FTPStore struct {
	Host        string
	Port        int
	User        string
	Password    string
	ConnTimeout time.Duration
}

func (s *FTPStore) connect() (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(fmt.Sprintf("%s:%d", s.Host, s.Port), ftp.DialWithTimeout(s.ConnTimeout))
	if err != nil {
		return nil, err
	}
	if err = conn.Login(s.User, s.Password); err != nil {
		_ = conn.Quit()
		return nil, err
	}
	return conn, nil
}

func (s *FTPStore) Create(name string) (io.WriteCloser, error) {
	conn, err := s.connect()
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := conn.Stor(name, pr)
		// unblock the writer if the upload stopped early
		_ = pr.CloseWithError(err)
		done <- err
	}()
	return &ftpWriter{pw: pw, conn: conn, done: done}, nil
}

func (s *FTPStore) Open(name string) (io.ReadCloser, error) {
	conn, err := s.connect()
	if err != nil {
		return nil, err
	}
	resp, err := conn.Retr(name)
	if err != nil {
		_ = conn.Quit()
		return nil, err
	}
	return &ftpReader{resp: resp, conn: conn}, nil
}

type ftpWriter struct {
	pw   *io.PipeWriter
	conn *ftp.ServerConn
	done chan error
}

func (w *ftpWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *ftpWriter) Close() error {
	closeErr := w.pw.Close()
	storErr := <-w.done
	quitErr := w.conn.Quit()
	for _, err := range []error{storErr, closeErr, quitErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

type ftpReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return respErr
	}
	return quitErr
}
