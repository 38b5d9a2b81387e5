package orchestrator

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/channelcast/channelcast/internal/epg"
	"github.com/channelcast/channelcast/internal/errors"
	"github.com/channelcast/channelcast/internal/models"
	"github.com/channelcast/channelcast/internal/viewer"
)

// Router builds the gin engine exposing the playback and EPG surface (§6).
func (o *Orchestrator) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/epg.xml", o.handleEPG)
	r.GET("/:slug/:file", o.handleChannelFile)

	return r
}

// handleChannelFile dispatches on the requested filename: master.m3u8 and
// stream.m3u8 are playlists, stream_NNN.ts are segments, init.mp4 is the
// fMP4-mode initialization segment (not applicable in this deployment's
// mpeg-ts container choice — see the container-family decision in the
// project's grounding notes).
func (o *Orchestrator) handleChannelFile(c *gin.Context) {
	slug := c.Param("slug")
	file := c.Param("file")

	ch, ok := o.channelBySlug(slug)
	if !ok {
		errors.NewNotFoundError("channel", slug).ToGinResponse(c)
		return
	}

	switch {
	case file == "master.m3u8":
		o.tracker.NoteRequest(ch.ID, viewer.KindPlaylist)
		o.requestActivate(ch.ID)
		c.Data(http.StatusOK, "application/vnd.apple.mpegurl", []byte(masterPlaylist(ch)))

	case file == "stream.m3u8":
		o.tracker.NoteRequest(ch.ID, viewer.KindPlaylist)
		o.requestActivate(ch.ID)
		playlistPath := filepath.Join(ch.OutputDir, "stream.m3u8")
		body, err := o.hlsSvc.GetPlaylist(ch.ID, playlistPath, ch.SegmentDurationS)
		if err != nil {
			errors.NewFatalError("playlist read failed", err).ToGinResponse(c)
			return
		}
		c.Data(http.StatusOK, "application/vnd.apple.mpegurl", []byte(body))

	case strings.HasPrefix(file, "stream_") && strings.HasSuffix(file, ".ts"):
		o.tracker.NoteRequest(ch.ID, viewer.KindSegment)
		segPath := filepath.Join(ch.OutputDir, file)
		if _, err := os.Stat(segPath); err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(segPath)

	case file == "init.mp4":
		c.Status(http.StatusNotFound)

	default:
		c.Status(http.StatusNotFound)
	}
}

func masterPlaylist(ch models.Channel) string {
	return fmt.Sprintf(
		"#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\nstream.m3u8\n",
		(ch.VideoBitrateKbps+ch.AudioBitrateKbps)*1000, ch.Width, ch.Height,
	)
}

// handleEPG serves the XMLTV guide across all known channels (§6 EPG surface).
func (o *Orchestrator) handleEPG(c *gin.Context) {
	now := time.Now()
	channels := o.allChannels()
	guides := make([]epg.ChannelGuide, len(channels))
	for i, ch := range channels {
		guides[i] = epg.ChannelGuide{
			ID:          ch.Slug,
			DisplayName: ch.Name,
			Programs:    o.projector.Programs(ch.ID, now, 0),
		}
	}

	body, err := epg.MarshalXMLTVGuide(guides)
	if err != nil {
		errors.NewFatalError("xmltv marshal failed", err).ToGinResponse(c)
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(body))
}
