package epg

import (
	"encoding/xml"
	"fmt"

	"github.com/channelcast/channelcast/internal/models"
)

// xmltvDocument mirrors the subset of the XMLTV DTD this guide needs: one
// <channel> per channel plus a <programme> per models.EPGProgram.
type xmltvDocument struct {
	XMLName  xml.Name         `xml:"tv"`
	Channels []xmltvChannel   `xml:"channel"`
	Programs []xmltvProgramme `xml:"programme"`
}

type xmltvChannel struct {
	ID          string `xml:"id,attr"`
	DisplayName string `xml:"display-name"`
}

type xmltvProgramme struct {
	Start   string `xml:"start,attr"`
	Stop    string `xml:"stop,attr"`
	Channel string `xml:"channel,attr"`
	Title   string `xml:"title"`
	Desc    string `xml:"desc,omitempty"`
	Episode string `xml:"episode-num,omitempty"`
}

const xmltvTimeLayout = "20060102150405 -0700"

// ChannelGuide pairs a channel's display identity with its projected
// programs, for guides spanning more than one channel.
type ChannelGuide struct {
	ID          string
	DisplayName string
	Programs    []models.EPGProgram
}

// MarshalXMLTV serialises programs into a single-channel XMLTV document.
func MarshalXMLTV(channelID string, programs []models.EPGProgram) (string, error) {
	return MarshalXMLTVGuide([]ChannelGuide{{ID: channelID, DisplayName: channelID, Programs: programs}})
}

// MarshalXMLTVGuide serialises one <channel> plus its <programme> entries
// per guide, in a single <tv> document — the format §6 describes for the
// multi-channel EPG surface.
func MarshalXMLTVGuide(guides []ChannelGuide) (string, error) {
	doc := xmltvDocument{}
	for _, g := range guides {
		doc.Channels = append(doc.Channels, xmltvChannel{ID: g.ID, DisplayName: g.DisplayName})
		for _, p := range g.Programs {
			doc.Programs = append(doc.Programs, xmltvProgramme{
				Start:   p.StartTime.Format(xmltvTimeLayout),
				Stop:    p.EndTime.Format(xmltvTimeLayout),
				Channel: g.ID,
				Title:   p.Title,
				Desc:    p.Description,
				Episode: p.EpisodeNum,
			})
		}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal xmltv: %w", err)
	}
	return xml.Header + string(out), nil
}
