package deepgram

import "github.com/koscakluka/ema-interview/core/texttospeech"

const (
	VoiceThalia    texttospeech.Voice = "aura-2-thalia-en"
	VoiceAndromeda texttospeech.Voice = "aura-2-andromeda-en"
	VoiceHelena    texttospeech.Voice = "aura-2-helena-en"
	VoiceApollo    texttospeech.Voice = "aura-2-apollo-en"
	VoiceArcas     texttospeech.Voice = "aura-2-arcas-en"
	VoiceAries     texttospeech.Voice = "aura-2-aries-en"

	defaultVoice = VoiceThalia
)

func GetAvailableVoices() []texttospeech.Voice {
	return []texttospeech.Voice{
		VoiceThalia,
		VoiceAndromeda,
		VoiceHelena,
		VoiceApollo,
		VoiceArcas,
		VoiceAries,
	}
}
