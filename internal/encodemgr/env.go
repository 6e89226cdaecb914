package encodemgr

import (
	"os"
	"strconv"
)

// envParams carries everything buildEnv needs to produce the byte-exact
// environment contract of §4.6 step 4 / §6. Numeric fields are rendered
// as base-10 strings; absent optional values become "".
type envParams struct {
	recordedID int64
	input      string
	output     string // "" if null
	dir        string // "" if absent
	ffmpeg     string
	rec        *RecordedMetadata // nil fields render as ""
}

// buildEnv constructs the environment slice passed to the spawned
// encoder, reproducing the teacher's "augment os.Environ()" idiom
// (internal/infrastructure/processmgr/process_manager.go NewProcessManager)
// but with the spec's fixed, byte-exact variable contract instead of a
// single ENV override. This is the one external wire format the core
// owns (§6) and it must be reproduced exactly.
func buildEnv(p envParams) []string {
	env := append([]string{}, os.Environ()...)

	rec := p.rec

	env = append(env,
		"RECORDEDID="+strconv.FormatInt(p.recordedID, 10),
		"INPUT="+p.input,
		"OUTPUT="+p.output,
		"DIR="+p.dir,
		"FFMPEG="+p.ffmpeg,
		"NAME="+recField(rec, func(r *RecordedMetadata) string { return r.Name }),
		"DESCRIPTION="+recField(rec, func(r *RecordedMetadata) string { return r.Description }),
		"EXTENDED="+recField(rec, func(r *RecordedMetadata) string { return r.Extended }),
		"VIDEOTYPE="+recField(rec, func(r *RecordedMetadata) string { return r.VideoType }),
		"VIDEORESOLUTION="+recField(rec, func(r *RecordedMetadata) string { return r.VideoResolution }),
		"VIDEOSTREAMCONTENT="+recField(rec, func(r *RecordedMetadata) string { return r.VideoStreamContent }),
		"VIDEOCOMPONENTTYPE="+recField(rec, func(r *RecordedMetadata) string { return r.VideoComponentType }),
		"AUDIOSAMPLINGRATE="+recField(rec, func(r *RecordedMetadata) string { return r.AudioSamplingRate }),
		"AUDIOCOMPONENTTYPE="+recField(rec, func(r *RecordedMetadata) string { return r.AudioComponentType }),
		"CHANNELID="+recField(rec, func(r *RecordedMetadata) string { return r.ChannelID }),
		"GENRE1="+recField(rec, func(r *RecordedMetadata) string { return r.Genre1 }),
		"GENRE2="+recField(rec, func(r *RecordedMetadata) string { return r.Genre2 }),
		"GENRE3="+recField(rec, func(r *RecordedMetadata) string { return r.Genre3 }),
		"SUBGENRE1="+recField(rec, func(r *RecordedMetadata) string { return r.SubGenre1 }),
		"SUBGENRE2="+recField(rec, func(r *RecordedMetadata) string { return r.SubGenre2 }),
		"SUBGENRE3="+recField(rec, func(r *RecordedMetadata) string { return r.SubGenre3 }),
	)
	return env
}

// recField reads a field off rec, returning "" if rec itself is nil
// (absent optional metadata, per §6).
func recField(rec *RecordedMetadata, get func(*RecordedMetadata) string) string {
	if rec == nil {
		return ""
	}
	return get(rec)
}
