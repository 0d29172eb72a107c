package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/session"
	"github.com/mind-engage/mindengage-quiz/internal/transcript"
)

// GET /quiz/export
//
// Streams the current session as XML and keeps a copy in the blob store
// when one is configured.
func ExportTranscriptHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := d.Machine.Snapshot()
		if len(snap.Questions) == 0 {
			fail(w, fmt.Errorf("%w: no active session", session.ErrInvalidState))
			return
		}
		now := d.Now()
		var buf bytes.Buffer
		if err := transcript.Encode(&buf, snap, now); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		filename := transcript.Filename(now)

		if d.Blobs != nil {
			key := "sessions/" + snap.ID + "/" + filename
			if _, err := d.Blobs.Put(key, bytes.NewReader(buf.Bytes())); err != nil {
				d.Log.Warn("transcript archive failed", zap.String("key", key), zap.Error(err))
			}
		}

		w.Header().Set("Content-Type", transcript.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		_, _ = io.Copy(w, &buf)
	}
}

// POST /quiz/import (raw XML body, or multipart: file=session.xml)
func ImportTranscriptHandler(m *session.Machine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		var src io.Reader = r.Body
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			src = f
		}

		snap, err := transcript.Decode(src)
		if err != nil {
			fail(w, err)
			return
		}
		if _, err := m.ReviewImported(snap); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(m))
	}
}
