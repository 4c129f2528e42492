/*
go-detectstream runs real-time object detection on a live image stream.

Frames are letterboxed into a reusable model input buffer, converted to a
channel first tensor and handed to a pluggable inference backend.  Raw model
output is decoded into bounding boxes by a fused postprocessing graph
(center to corner conversion, class reduction and Non-Maximum Suppression)
and the resulting detections are remapped from model input space into an
arbitrary display viewport.

The orchestrator package guarantees at most one detection job is in flight
at a time, requests arriving while a job is running are dropped rather than
queued.

See cmd/detectstream for a complete capture, detect and render loop.
*/
package detectstream
