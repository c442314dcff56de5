package main

const (
	MsgPredictionFailed = "Error while predicting. The analysis service could not process this image right now, please try again in a moment."

	MsgBusy = "An analysis is already running for this page. Please wait for it to finish before submitting again."

	MsgNoFile = "Choose an ultrasound image first, then press Upload & Predict."

	MsgUnrecognized = "The model answered in a format this page does not understand, so no predictions can be shown."

	MsgNoPredictions = "The model returned no predictions for this image."

	MsgUploadTooLarge = "The selected file is larger than the upload limit."
)
