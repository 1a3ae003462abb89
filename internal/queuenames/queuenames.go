package queuenames

const (
	VideoProcess = "video_process"
)
