package ffmpegdecoder

// ptsQueue is a min-heap of presentation times of packets fed to ffmpeg
// whose frames have not come out yet. The decoder emits frames in
// presentation order, so the smallest pending time belongs to the next frame.
type ptsQueue []int

func (q ptsQueue) Len() int           { return len(q) }
func (q ptsQueue) Less(i, j int) bool { return q[i] < q[j] }
func (q ptsQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *ptsQueue) Push(x any) { *q = append(*q, x.(int)) }

func (q *ptsQueue) Pop() any {
	old := *q
	n := len(old)
	v := old[n-1]
	*q = old[:n-1]
	return v
}
