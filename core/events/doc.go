// Package events defines the typed events an interview session reports to
// observers.
//
// Event kinds are grouped by namespace:
//
//   - candidate_input.*
//   - interviewer_speech.*
//   - interviewer_playback.*
//   - turn_state.*
//   - phase.*
//   - session.*
//
// candidate_input events
//
//   - CandidateSpeechStarted (candidate_input.speech_started): voice activity began.
//   - CandidateSpeechEnded (candidate_input.speech_ended): voice activity ended.
//   - CandidateTranscriptUpdated (candidate_input.transcript_updated): interim
//     or final transcript fragment.
//   - CandidateTurnEnded (candidate_input.turn_ended): the turn detector closed
//     the candidate's turn. NoResponse is set when nothing was said.
//
// interviewer_speech events
//
//   - InterviewerLinePlanned (interviewer_speech.line_planned): the line the
//     interviewer is about to say.
//   - InterviewerSpeechStarted (interviewer_speech.started): the first
//     synthesized frame reached the transport.
//   - InterviewerSpeechFailed (interviewer_speech.failed): synthesis failed.
//
// interviewer_playback events
//
//   - InterviewerPlaybackCompleted (interviewer_playback.completed): the
//     transport played the line's mark, or the speaking limit expired.
//
// turn_state, phase and session events
//
//   - TurnStateChanged (turn_state.changed)
//   - PhaseChanged (phase.changed)
//   - ScoreRecorded (phase.score_recorded)
//   - SessionStarted (session.started)
//   - SessionEnded (session.ended): terminal status and end reason.
package events
