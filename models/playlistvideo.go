package models

import (
	"time"

	"fknsrs.biz/p/vidscribe/internal/sqlbuilderutil"
)

var (
	PlaylistVideoTable *sqlbuilderutil.Table
)

func init() {
	PlaylistVideoTable = sqlbuilderutil.MustMakeTable(PlaylistVideo{})
}

// PlaylistVideo is a membership. The surrogate ID exists for the record
// layer; (PlaylistID, VideoID) is unique.
type PlaylistVideo struct {
	ID         int       `sql:",table:playlist_videos" json:"-"`
	AddedAt    time.Time `json:"added_at"`
	PlaylistID int       `json:"playlist_id"`
	VideoID    int       `json:"video_id"`
	Position   int       `json:"position"`
}
