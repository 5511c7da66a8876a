package paramsets

// VideoParams is the video parameter state of spec §3: valid once at
// least one complete SPS has been observed. Re-parsing a subsequent SPS
// overwrites it in place; callers are responsible for treating a parse
// failure as "parameters unavailable" rather than leaving stale values.
type VideoParams struct {
	Valid  bool
	IsHEVC bool

	CodecWidth  int
	CodecHeight int
	SARWidth    int
	SARHeight   int

	ChromaFormatIDC      byte
	BitDepthLumaMinus8   byte
	BitDepthChromaMinus8 byte

	// HEVC-only fields.
	GeneralProfileSpace      byte
	GeneralTierFlag          byte
	GeneralProfileIDC        byte
	CompatibilityFlags       [4]byte
	ConstraintFlags          [6]byte
	LevelIDC                 byte
	MinSpatialSegmentationIDC int
	ParallelismType          int
	NumTemporalLayers        int
	TemporalIDNestingFlag    bool

	// Raw NAL bytes (including the NAL header byte(s)), retained for
	// avcC/hvcC emission.
	VPS []byte
	SPS []byte
	PPS []byte
}

// AudioParams is the ADTS AAC audio parameter state of spec §3.
type AudioParams struct {
	Valid                 bool
	Profile               byte
	SamplingFrequencyIndex byte
	ChannelConfiguration  byte
	SamplingFrequency     int
}

// aacSampleRates is the 13-entry ADTS sampling_frequency_index table;
// indices 13-15 are reserved/unused and map to 0.
var aacSampleRates = [16]int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
	0, 0, 0,
}

// avcSARTable is the 17-entry aspect_ratio_idc table from the AVC VUI
// (Table E-1); index 255 is handled separately as the extended SAR case.
var avcSARTable = [17][2]int{
	{0, 0}, {1, 1}, {12, 11}, {10, 11}, {16, 11}, {40, 33}, {24, 11},
	{20, 11}, {32, 11}, {80, 33}, {18, 11}, {15, 11}, {64, 33}, {160, 99},
	{4, 3}, {3, 2}, {2, 1},
}
