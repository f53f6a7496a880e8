package templates

import _ "embed"

var (
	//go:embed resource/hello.txt
	Hello string
	//go:embed resource/unexpectedError.txt
	UnexpectedError string
	//go:embed resource/emptyAdd.txt
	EmptyAdd string
	//go:embed resource/emptyRemove.txt
	EmptyRemove string
	//go:embed resource/addSuccess.txt
	AddSuccess string
	//go:embed resource/alreadySubscribed.txt
	AlreadySubscribed string
	//go:embed resource/invalidUsername.txt
	InvalidUsername string
	//go:embed resource/streamerNotFound.txt
	StreamerNotFound string
	//go:embed resource/unknownService.txt
	UnknownService string
	//go:embed resource/providerUnavailable.txt
	ProviderUnavailable string
	//go:embed resource/adminsOnly.txt
	AdminsOnly string
	//go:embed resource/channelNotFound.txt
	ChannelNotFound string
	//go:embed resource/noChannels.txt
	NoChannels string
	//go:embed resource/channelList.txt
	ChannelList string
	//go:embed resource/channelListLive.txt
	ChannelListLive string
	//go:embed resource/removeSuccess.txt
	RemoveSuccess string
	//go:embed resource/notSubscribed.txt
	NotSubscribed string
	//go:embed resource/selectRemove.txt
	SelectRemove string
	//go:embed resource/live.txt
	Live string
)
