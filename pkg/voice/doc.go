// Package voice speaks coach messages.
//
// A Speaker turns text into speech with a tts.Provider and plays it on an
// audioio.Sink. It satisfies attention.VoiceSink: Speak returns at once,
// and a new message replaces the one in flight instead of queueing behind
// it. Failures are logged and counted, never returned to the caller.
//
//	sink, _ := audioio.NewSink(audioio.DefaultConfig(), logger)
//	speaker := voice.New(chain, sink, voice.DefaultConfig(), voice.WithLogger(logger))
//	defer speaker.Close()
//
//	speaker.Speak("Welcome back! Let's keep going.")
package voice
