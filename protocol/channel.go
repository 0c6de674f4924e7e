package protocol

// ChannelCount is the number of channels eligible for round-robin
// dequeue in a packet queue at any one time. Channel 0 is the main
// channel for reliable standalone packets; additional channels are
// created per ordered/unordered multi-packet message. Channels beyond
// ChannelCount still exist and accept packets, they simply wait to
// become eligible until an earlier channel drains and is dropped.
const ChannelCount = 16
