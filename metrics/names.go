package metrics

const (
	PushesMetricName        = "cohort_channel_pushes"
	FullPushesMetricName    = "cohort_channel_full_pushes"
	PopsMetricName          = "cohort_channel_pops"
	EmptyPopsMetricName     = "cohort_channel_empty_pops"
	SenderDepthMetricName   = "cohort_channel_sender_depth"
	ReceiverDepthMetricName = "cohort_channel_receiver_depth"
	AuxMetricName           = "cohort_channel_aux"
	LeakedBytesMetricName   = "cohort_leaked_bytes"
)
